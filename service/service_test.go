package service

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func load(t *testing.T, dir string, opts Options) *Service {
	t.Helper()

	opts.ServicePath = filepath.Join("testdata", dir)
	if opts.Logger == nil {
		logger, _ := test.NewNullLogger()
		opts.Logger = logger
	}

	svc := New(opts)
	ctx := context.Background()
	if err := svc.Init(ctx); err != nil {
		t.Fatalf("Init: %+v", err)
	}
	if err := svc.Variables.PopulateService(ctx, nil); err != nil {
		t.Fatalf("PopulateService: %+v", err)
	}
	if err := svc.MergeArrays(); err != nil {
		t.Fatalf("MergeArrays: %+v", err)
	}
	svc.SetFunctionNames(nil)
	return svc
}

func TestNewHasNoFunctions(t *testing.T) {
	svc := New(Options{ServicePath: filepath.Join("testdata", "sample_sls_project")})

	if got := svc.GetAllFunctions(); len(got) != 0 {
		t.Fatalf("want no functions before Init, got %v", got)
	}
	if _, err := svc.GetFunction("hello"); err == nil {
		t.Fatal("want error for function lookup before Init")
	}
}

func TestInitSampleProject(t *testing.T) {
	svc := load(t, "sample_sls_project", Options{})

	if svc.Name != "sample-sls-project" {
		t.Fatalf("got service name %q", svc.Name)
	}
	if svc.Provider.Stage != "prod-stage-test" {
		t.Fatalf("got stage %q, want prod-stage-test", svc.Provider.Stage)
	}
	if svc.Provider.Region != "us-east-1" {
		t.Fatalf("got region %q, want us-east-1", svc.Provider.Region)
	}

	want := map[string]string{"STAGE": "prod-stage-test"}
	if !reflect.DeepEqual(svc.Provider.Environment, want) {
		t.Fatalf("got provider environment %v, want %v", svc.Provider.Environment, want)
	}

	if got, want := svc.GetAllFunctions(), []string{"hello", "goodbye"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got functions %v, want %v", got, want)
	}

	hello, err := svc.GetFunction("hello")
	if err != nil {
		t.Fatal(err)
	}
	if got := hello.Environment["HELLO"]; got != "world us-east-1" {
		t.Fatalf("got HELLO=%q, want %q", got, "world us-east-1")
	}
	if hello.Name != "sample-sls-project-prod-stage-test-hello" {
		t.Fatalf("got default name %q", hello.Name)
	}

	goodbye, err := svc.GetFunction("goodbye")
	if err != nil {
		t.Fatal(err)
	}
	if goodbye.Name != "custom-goodbye" {
		t.Fatalf("explicit name overwritten: %q", goodbye.Name)
	}
	if len(goodbye.Environment) != 0 {
		t.Fatalf("want empty environment, got %v", goodbye.Environment)
	}
	if len(goodbye.Events) != 1 {
		t.Fatalf("want 1 event, got %v", goodbye.Events)
	}

	if err := svc.Validate(); err != nil {
		t.Fatalf("Validate: %+v", err)
	}
}

func TestInitStageOption(t *testing.T) {
	svc := load(t, "sample_sls_project", Options{Stage: "qa", Region: "eu-west-1"})

	if svc.Provider.Stage != "qa" {
		t.Fatalf("got stage %q, want qa", svc.Provider.Stage)
	}
	hello, _ := svc.GetFunction("hello")
	if got := hello.Environment["HELLO"]; got != "world eu-west-1" {
		t.Fatalf("got HELLO=%q", got)
	}
	if hello.Name != "sample-sls-project-qa-hello" {
		t.Fatalf("got name %q", hello.Name)
	}
}

func TestInitJSON(t *testing.T) {
	svc := load(t, "json_project", Options{})

	fn, err := svc.GetFunction("ping")
	if err != nil {
		t.Fatal(err)
	}
	if fn.Name != "json-project-qa-ping" {
		t.Fatalf("got name %q", fn.Name)
	}
}

func TestInitMissingDefinition(t *testing.T) {
	svc := New(Options{ServicePath: filepath.Join("testdata", "empty")})

	err := svc.Init(context.Background())
	if err == nil {
		t.Fatal("want error for missing service definition")
	}
	if cerr, ok := err.(*ConfigError); !ok || cerr.Err != ErrServiceNotFound {
		t.Fatalf("got %T (%v), want a ConfigError caused by ErrServiceNotFound", err, err)
	}
}

func TestConfigErrorUnwrapping(t *testing.T) {
	err := error(&ConfigError{Msg: "no serverless service definition found", Err: ErrServiceNotFound})
	if !errors.Is(err, ErrServiceNotFound) {
		t.Fatal("want errors.Is to find ErrServiceNotFound")
	}
	if got := pkgerrors.Cause(err); got != err {
		t.Fatalf("got Cause %v, want the ConfigError itself", got)
	}

	bare := error(&ConfigError{Msg: "malformed"})
	if got := pkgerrors.Cause(pkgerrors.Wrap(bare, "loading")); got != bare {
		t.Fatalf("got Cause %v, want the ConfigError", got)
	}
}

func TestInitNoServicePath(t *testing.T) {
	if err := New(Options{}).Init(context.Background()); err == nil {
		t.Fatal("want error without a service path")
	}
}

func TestMergeArrays(t *testing.T) {
	svc := load(t, "arrays", Options{})

	if svc.Name != "arrays" {
		t.Fatalf("got service name %q", svc.Name)
	}
	if got, want := svc.GetAllFunctions(), []string{"first", "second"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got functions %v, want %v", got, want)
	}

	second, _ := svc.GetFunction("second")
	if got := second.Environment["RETRIES"]; got != "3" {
		t.Fatalf("got RETRIES=%q, want 3", got)
	}
	if second.Name != "arrays-dev-second" {
		t.Fatalf("got name %q", second.Name)
	}

	res := lookupPath(svc.root, []string{"resources", "Resources"})
	if res == nil || len(res.Content) != 4 {
		t.Fatalf("want merged Resources with two entries, got %+v", res)
	}

	if err := svc.Validate(); err != nil {
		t.Fatalf("Validate: %+v", err)
	}
}

func TestMergeArraysDeep(t *testing.T) {
	svc, err := populate(t, `
service: deep
provider:
  name: aws
functions:
  - hello:
      handler: hello.Handle
      environment:
        A: "1"
  - hello:
      environment:
        B: "2"
      events:
        - http: GET /hello
resources:
  - Resources:
      Bucket:
        Type: AWS::S3::Bucket
        Properties:
          BucketName: one
  - Resources:
      Bucket:
        Properties:
          Versioning: true
      Queue:
        Type: AWS::SQS::Queue
`, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.MergeArrays(); err != nil {
		t.Fatalf("MergeArrays: %+v", err)
	}

	fn, err := svc.GetFunction("hello")
	if err != nil {
		t.Fatal(err)
	}
	if fn.Handler != "hello.Handle" {
		t.Fatalf("handler lost in merge: %q", fn.Handler)
	}
	if want := map[string]string{"A": "1", "B": "2"}; !reflect.DeepEqual(fn.Environment, want) {
		t.Fatalf("got environment %v, want %v", fn.Environment, want)
	}
	if len(fn.Events) != 1 {
		t.Fatalf("got events %v", fn.Events)
	}

	for _, path := range [][]string{
		{"resources", "Resources", "Bucket", "Type"},
		{"resources", "Resources", "Bucket", "Properties", "BucketName"},
		{"resources", "Resources", "Bucket", "Properties", "Versioning"},
		{"resources", "Resources", "Queue", "Type"},
	} {
		if lookupPath(svc.root, path) == nil {
			t.Errorf("missing %v after merge", path)
		}
	}
}

func TestMergeArraysRejectsNonMapping(t *testing.T) {
	svc, err := populate(t, `
service: broken
provider:
  name: aws
functions:
  - foo
`, Options{})
	if err != nil {
		t.Fatal(err)
	}

	err = svc.MergeArrays()
	if _, ok := err.(*ConfigError); !ok {
		t.Fatalf("got %T (%v), want *ConfigError", err, err)
	}
}

func TestMergeArraysUninitialized(t *testing.T) {
	if err := New(Options{}).MergeArrays(); err == nil {
		t.Fatal("want error for an uninitialized service")
	}
}

func TestSetFunctionNamesPrecedence(t *testing.T) {
	svc := load(t, "json_project", Options{})
	svc.Functions["ping"].Name = ""

	svc.SetFunctionNames(map[string]string{"stage": "override"})

	if got := svc.Functions["ping"].Name; got != "json-project-override-ping" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitHandler(t *testing.T) {
	tests := []struct {
		handler, module, export string
		wantErr                 bool
	}{
		{handler: "handler.hello", module: "handler", export: "hello"},
		{handler: "src/handlers/user.create", module: "src/handlers/user", export: "create"},
		{handler: "./lib/v1.2/api.Handle", module: "./lib/v1.2/api", export: "Handle"},
		{handler: "nodot", wantErr: true},
		{handler: ".hello", wantErr: true},
		{handler: "handler.", wantErr: true},
		{handler: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.handler, func(t *testing.T) {
			module, export, err := SplitHandler(tt.handler)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("want error, got %q %q", module, export)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if module != tt.module || export != tt.export {
				t.Fatalf("got %q %q, want %q %q", module, export, tt.module, tt.export)
			}
		})
	}
}

func TestDefaultLogger(t *testing.T) {
	svc := New(Options{})
	if svc.logger == nil {
		t.Fatal("want a default logger")
	}
	if _, ok := svc.logger.(*logrus.Entry); !ok {
		t.Fatalf("got %T, want *logrus.Entry", svc.logger)
	}
}
