package slstest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heroku/slstest/lambdawrap"
	"github.com/heroku/slstest/slsenv"
)

var sampleProject = filepath.Join("testdata", "sample_sls_project")

func init() {
	lambdawrap.Register("handler", "hello", hello)
}

func hello(ctx context.Context, event json.RawMessage, cb lambdawrap.Callback) {
	stage := lambdawrap.Getenv(ctx, "STAGE")
	if stage != "prod-stage-test" || lambdawrap.Getenv(ctx, "HELLO") != "world us-east-1" {
		cb(errors.New("Environmental variables failed"), nil)
		return
	}

	body, err := json.Marshal(map[string]interface{}{
		"message": "Go Serverless v1.0! Your function executed successfully!",
		"stage":   stage,
		"input":   event,
	})
	if err != nil {
		cb(err, nil)
		return
	}
	cb(nil, events.APIGatewayProxyResponse{StatusCode: 200, Body: string(body)})
}

func TestInvokeSampleProject(t *testing.T) {
	h := New(t, sampleProject)

	resp, err := h.Invoke(t, "hello", nil)
	require.NoError(t, err)

	var out events.APIGatewayProxyResponse
	require.NoError(t, resp.Decode(&out))
	assert.Equal(t, 200, out.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out.Body), &body))
	assert.Equal(t, "Go Serverless v1.0! Your function executed successfully!", body["message"])
	assert.Equal(t, "prod-stage-test", body["stage"])
}

func TestInvokeWrongStage(t *testing.T) {
	t.Setenv("SLSENV_STAGE", "other")
	h := New(t, sampleProject)

	assert.Equal(t, "other", h.Getenv("STAGE"))

	_, err := h.Invoke(t, "hello", nil)
	require.Error(t, err)
	assert.Equal(t, "Environmental variables failed", err.Error())
}

func TestInvokeWrongRegion(t *testing.T) {
	t.Setenv("SLSENV_REGION", "eu-west-1")
	h := New(t, sampleProject)

	assert.Equal(t, "prod-stage-test", h.Getenv("STAGE"))
	assert.Equal(t, "world eu-west-1", h.Getenv("HELLO"))

	_, err := h.Invoke(t, "hello", nil)
	require.Error(t, err)
	assert.Equal(t, "Environmental variables failed", err.Error())
}

func TestWrapperAppliesServiceChanges(t *testing.T) {
	h := New(t, sampleProject)

	fn := h.Env.Global.ServerlessWrapper.Serverless.Functions["hello"]
	fn.Environment["testEnvVar"] = "some value"

	h.Wrapper(t, "hello")
	assert.Equal(t, "some value", h.Getenv("testEnvVar"))

	_, set := os.LookupEnv("testEnvVar")
	assert.False(t, set, "real process environment modified")
}

func TestApply(t *testing.T) {
	h := New(t, sampleProject)
	h.Apply(t)

	assert.Equal(t, "prod-stage-test", os.Getenv("STAGE"))
	assert.Equal(t, "world us-east-1", os.Getenv("HELLO"))
	assert.Equal(t, "true", os.Getenv(slsenv.MarkerVar))
}

func TestTornDownAfterCleanup(t *testing.T) {
	var h *Harness
	t.Run("setup", func(t *testing.T) {
		h = New(t, sampleProject)
		assert.NotNil(t, h.Env.Global.ServerlessWrapper)
	})

	assert.Nil(t, h.Env.Global.ServerlessWrapper)

	_, err := h.Env.Global.LambdaWrapper.GetWrapper("hello")
	assert.Equal(t, slsenv.ErrTornDown, err)
}

func TestDefinition(t *testing.T) {
	assert.NoError(t, definition(sampleProject))
	assert.Error(t, definition(filepath.Join("testdata", "empty")))
}
