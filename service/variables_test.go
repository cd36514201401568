package service

import (
	"bytes"
	"context"
	"io/ioutil"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/aws/aws-sdk-go/service/ssm/ssmiface"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeService(t *testing.T, definition string) string {
	t.Helper()

	dir := t.TempDir()
	if err := ioutil.WriteFile(filepath.Join(dir, "serverless.yml"), []byte(definition), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func populate(t *testing.T, definition string, opts Options) (*Service, error) {
	t.Helper()

	opts.ServicePath = writeService(t, definition)
	if opts.Logger == nil {
		logger, _ := test.NewNullLogger()
		opts.Logger = logger
	}

	svc := New(opts)
	require.NoError(t, svc.Init(context.Background()))
	return svc, svc.Variables.PopulateService(context.Background(), nil)
}

func TestPopulateSelfReferences(t *testing.T) {
	svc := load(t, "arrays", Options{})

	assert.Equal(t, "dev", svc.Provider.Stage)
	assert.Equal(t, "dev-table", svc.Provider.Environment["TABLE"])
	assert.Equal(t, map[string]interface{}{"timeout": 30, "memory": 256}, svc.Custom["settings"])
	assert.Equal(t, 30, svc.Custom["timeout"])
}

func TestPopulateEnvSource(t *testing.T) {
	t.Setenv("SLSENV_TEST_STAGE", "prod")

	svc := load(t, "arrays", Options{})

	assert.Equal(t, "prod", svc.Provider.Stage)
	assert.Equal(t, "prod-table", svc.Provider.Environment["TABLE"])
	assert.Equal(t, "arrays-prod-first", svc.Functions["first"].Name)
}

func TestPopulateCircularReference(t *testing.T) {
	svc := New(Options{ServicePath: filepath.Join("testdata", "nested")})
	require.NoError(t, svc.Init(context.Background()))

	err := svc.Variables.PopulateService(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular")
}

func TestPopulateFallbacks(t *testing.T) {
	svc, err := populate(t, `
service: fallbacks
provider:
  name: aws
  environment:
    QUOTED: ${opt:missing, 'quoted, with comma'}
    DOUBLE: ${opt:missing, "double"}
    NUMBER: ${opt:missing, 42}
    CHAINED: ${opt:missing, env:SLSENV_TEST_UNSET_VAR, self:custom.value}
    EMBEDDED: prefix-${opt:missing, self:custom.value}-suffix
    OPTION: ${opt:flavor}
    UNRESOLVED: ${opt:missing}
    PARTIAL: before-${opt:missing}-after
custom:
  value: from-custom
`, Options{})
	require.NoError(t, err)

	env := svc.Provider.Environment
	assert.Equal(t, "quoted, with comma", env["QUOTED"])
	assert.Equal(t, "double", env["DOUBLE"])
	assert.Equal(t, "42", env["NUMBER"])
	assert.Equal(t, "from-custom", env["CHAINED"])
	assert.Equal(t, "prefix-from-custom-suffix", env["EMBEDDED"])
	assert.Equal(t, "before--after", env["PARTIAL"])

	_, ok := env["UNRESOLVED"]
	assert.False(t, ok, "unresolved whole-value reference should be dropped")
	_, ok = env["OPTION"]
	assert.False(t, ok)
}

func TestPopulateOptions(t *testing.T) {
	dir := writeService(t, `
service: opts
provider:
  name: aws
  environment:
    FLAVOR: ${opt:flavor}
`)
	svc := New(Options{ServicePath: dir})
	require.NoError(t, svc.Init(context.Background()))
	require.NoError(t, svc.Variables.PopulateService(context.Background(), map[string]string{"flavor": "mint"}))

	assert.Equal(t, "mint", svc.Provider.Environment["FLAVOR"])
}

func TestPopulateWarnsOnUnresolved(t *testing.T) {
	logger, hook := test.NewNullLogger()

	_, err := populate(t, `
service: warn
provider:
  name: aws
  stage: ${opt:stage}
`, Options{Logger: logger})
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "${opt:stage}", entry.Data["variable"])
}

func TestPopulateNonScalarIntoString(t *testing.T) {
	_, err := populate(t, `
service: bad
provider:
  name: aws
  stage: stage-${self:custom}
custom:
  a: b
`, Options{})
	require.Error(t, err)
	assert.IsType(t, &ConfigError{}, err)
}

func TestPopulateInvalidSyntax(t *testing.T) {
	for _, def := range []string{
		"service: x\nprovider:\n  stage: ${nosource}\n",
		"service: x\nprovider:\n  stage: ${vault:secret}\n",
		"service: x\nprovider:\n  stage: ${file(./x.yml}\n",
	} {
		_, err := populate(t, def, Options{})
		assert.Error(t, err, def)
	}
}

func TestPopulateMissingFile(t *testing.T) {
	svc, err := populate(t, `
service: files
provider:
  name: aws
  stage: ${file(./nope.yml):stage, 'fallback'}
`, Options{})
	require.NoError(t, err)
	assert.Equal(t, "fallback", svc.Provider.Stage)
}

func TestPopulateCustomSource(t *testing.T) {
	var addresses []string
	src := SourceFunc(func(_ context.Context, address string) (string, bool, error) {
		addresses = append(addresses, address)
		return strings.ToUpper(address), true, nil
	})

	svc, err := populate(t, `
service: custom
provider:
  name: aws
  environment:
    SHOUT: ${vault:quiet}
`, Options{Sources: map[string]Source{"vault": src}})
	require.NoError(t, err)

	assert.Equal(t, "QUIET", svc.Provider.Environment["SHOUT"])
	assert.Equal(t, []string{"quiet"}, addresses)
}

func TestPopulateSingleValue(t *testing.T) {
	svc := load(t, "sample_sls_project", Options{})

	got, err := svc.Variables.Populate(context.Background(), "${self:service}/${self:provider.stage}")
	require.NoError(t, err)
	assert.Equal(t, "sample-sls-project/prod-stage-test", got)

	_, err = New(Options{}).Variables.Populate(context.Background(), "x")
	assert.Error(t, err)
}

func TestSplitTerms(t *testing.T) {
	got := splitTerms(`opt:stage, 'a,b', file(./x,y.yml):k, "c"`)
	want := []string{"opt:stage", " 'a,b'", " file(./x,y.yml):k", ` "c"`}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

type fakeS3 struct {
	s3iface.S3API
	objects map[string]string
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.StringValue(in.Bucket)+"/"+aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil)
	}
	return &s3.GetObjectOutput{Body: ioutil.NopCloser(bytes.NewBufferString(body))}, nil
}

type fakeSSM struct {
	ssmiface.SSMAPI
	params    map[string]string
	decrypted []bool
}

func (f *fakeSSM) GetParameterWithContext(_ aws.Context, in *ssm.GetParameterInput, _ ...request.Option) (*ssm.GetParameterOutput, error) {
	f.decrypted = append(f.decrypted, aws.BoolValue(in.WithDecryption))
	v, ok := f.params[aws.StringValue(in.Name)]
	if !ok {
		return nil, awserr.New(ssm.ErrCodeParameterNotFound, "not found", nil)
	}
	return &ssm.GetParameterOutput{Parameter: &ssm.Parameter{Value: aws.String(v)}}, nil
}

func TestPopulateAWSSources(t *testing.T) {
	s3c := &fakeS3{objects: map[string]string{"config-bucket/api-key": "s3-secret"}}
	ssmc := &fakeSSM{params: map[string]string{"/app/token": "ssm-token"}}

	svc, err := populate(t, `
service: aws-sources
provider:
  name: aws
  environment:
    API_KEY: ${s3:config-bucket/api-key}
    TOKEN: ${ssm:/app/token~true}
    PLAIN: ${ssm:/app/token}
    MISSING_S3: ${s3:config-bucket/missing, 'none'}
    MISSING_SSM: ${ssm:/app/missing, 'none'}
`, Options{Sources: map[string]Source{
		"s3":  &S3Source{Client: s3c},
		"ssm": &SSMSource{Client: ssmc},
	}})
	require.NoError(t, err)

	env := svc.Provider.Environment
	assert.Equal(t, "s3-secret", env["API_KEY"])
	assert.Equal(t, "ssm-token", env["TOKEN"])
	assert.Equal(t, "ssm-token", env["PLAIN"])
	assert.Equal(t, "none", env["MISSING_S3"])
	assert.Equal(t, "none", env["MISSING_SSM"])
	assert.Equal(t, []bool{true, false, false}, ssmc.decrypted)
}

func TestS3SourceInvalidAddress(t *testing.T) {
	src := &S3Source{Client: &fakeS3{}}
	_, _, err := src.Resolve(context.Background(), "bucket-only")
	assert.Error(t, err)
}
