package service

import (
	"context"
	"io/ioutil"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/aws/aws-sdk-go/service/ssm/ssmiface"
	"github.com/pkg/errors"
)

// A Source resolves the address part of a ${prefix:address} reference.
// found is false when the address does not exist, in which case the
// reference falls back to its next term.
type Source interface {
	Resolve(ctx context.Context, address string) (value string, found bool, err error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, address string) (string, bool, error)

// Resolve calls fn.
func (fn SourceFunc) Resolve(ctx context.Context, address string) (string, bool, error) {
	return fn(ctx, address)
}

// EnvSource resolves ${env:NAME} from the process environment.
type EnvSource struct{}

// Resolve implements Source.
func (EnvSource) Resolve(_ context.Context, address string) (string, bool, error) {
	v, ok := os.LookupEnv(address)
	return v, ok, nil
}

// S3Source resolves ${s3:bucket/key} to the object's body.
type S3Source struct {
	// Client is created from Region on first use when nil.
	Client s3iface.S3API
	Region string

	once sync.Once
	err  error
}

// Resolve implements Source.
func (s *S3Source) Resolve(ctx context.Context, address string) (string, bool, error) {
	parts := strings.SplitN(address, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", false, errors.Errorf("invalid s3 address %q, want bucket/key", address)
	}

	s.once.Do(func() {
		if s.Client != nil {
			return
		}
		var sess *session.Session
		if sess, s.err = newSession(s.Region); s.err == nil {
			s.Client = s3.New(sess)
		}
	})
	if s.err != nil {
		return "", false, s.err
	}

	out, err := s.Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(parts[0]),
		Key:    aws.String(parts[1]),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
			return "", false, nil
		}
		return "", false, errors.Wrapf(err, "getting s3 object %s", address)
	}
	defer out.Body.Close()

	b, err := ioutil.ReadAll(out.Body)
	if err != nil {
		return "", false, errors.Wrapf(err, "reading s3 object %s", address)
	}
	return string(b), true, nil
}

// SSMSource resolves ${ssm:/name} to a parameter value. A ~true suffix
// requests decryption of SecureString parameters.
type SSMSource struct {
	// Client is created from Region on first use when nil.
	Client ssmiface.SSMAPI
	Region string

	once sync.Once
	err  error
}

// Resolve implements Source.
func (s *SSMSource) Resolve(ctx context.Context, address string) (string, bool, error) {
	name, decrypt := address, false
	if i := strings.LastIndex(address, "~"); i >= 0 {
		name, decrypt = address[:i], address[i+1:] == "true"
	}
	if name == "" {
		return "", false, errors.Errorf("invalid ssm address %q", address)
	}

	s.once.Do(func() {
		if s.Client != nil {
			return
		}
		var sess *session.Session
		if sess, s.err = newSession(s.Region); s.err == nil {
			s.Client = ssm.New(sess)
		}
	})
	if s.err != nil {
		return "", false, s.err
	}

	out, err := s.Client.GetParameterWithContext(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(decrypt),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == ssm.ErrCodeParameterNotFound {
			return "", false, nil
		}
		return "", false, errors.Wrapf(err, "getting ssm parameter %s", name)
	}
	if out.Parameter == nil {
		return "", false, nil
	}
	return aws.StringValue(out.Parameter.Value), true, nil
}

func newSession(region string) (*session.Session, error) {
	cfg := &aws.Config{}
	if region != "" {
		cfg.Region = aws.String(region)
	}
	sess, err := session.NewSession(cfg)
	return sess, errors.Wrap(err, "creating aws session")
}
