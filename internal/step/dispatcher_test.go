package step

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimjoonhwaan/metaworkflow/internal/llm"
	"github.com/kimjoonhwaan/metaworkflow/internal/llm/providers"
	"github.com/kimjoonhwaan/metaworkflow/internal/notify"
	"github.com/kimjoonhwaan/metaworkflow/internal/sandbox"
	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

func makeStep(stepType types.StepType, config map[string]any) types.Step {
	return types.Step{
		ID:     types.NewID(),
		Order:  1,
		Name:   "test-" + stepType.String(),
		Type:   stepType,
		Config: config,
	}
}

func TestConditionStep(t *testing.T) {
	d := New()

	step := makeStep(types.StepTypeCondition, map[string]any{
		"expression": `score >= 80 && status == "ok"`,
	})

	result, err := d.ExecuteStep(context.Background(), step,
		map[string]any{"score": float64(90), "status": "ok"})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, map[string]any{"condition_met": true}, result.Output)

	result, err = d.ExecuteStep(context.Background(), step,
		map[string]any{"score": float64(50), "status": "ok"})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, map[string]any{"condition_met": false}, result.Output)
}

func TestConditionStepConditionKey(t *testing.T) {
	d := New()

	// "condition" is the canonical config key for this step type.
	step := makeStep(types.StepTypeCondition, map[string]any{
		"condition": `count > 3`,
	})

	result, err := d.ExecuteStep(context.Background(), step,
		map[string]any{"count": float64(5)})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, map[string]any{"condition_met": true}, result.Output)

	// When both keys are present, "condition" wins.
	both := makeStep(types.StepTypeCondition, map[string]any{
		"condition":  `count > 3`,
		"expression": `count > 100`,
	})
	result, err = d.ExecuteStep(context.Background(), both,
		map[string]any{"count": float64(5)})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, map[string]any{"condition_met": true}, result.Output)
}

func TestConditionStepEvaluationError(t *testing.T) {
	d := New()

	step := makeStep(types.StepTypeCondition, map[string]any{
		"expression": `missing_var > 3`,
	})

	result, err := d.ExecuteStep(context.Background(), step, map[string]any{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "EVALUATION_ERROR")
}

func TestConditionStepRequiresExpression(t *testing.T) {
	d := New()

	step := makeStep(types.StepTypeCondition, map[string]any{})
	result, err := d.ExecuteStep(context.Background(), step, map[string]any{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "expression")
}

func TestDataTransformStep(t *testing.T) {
	d := New()

	step := makeStep(types.StepTypeDataTransform, map[string]any{
		"rules": []any{
			map[string]any{"target": "copied", "expression": "source"},
			map[string]any{"target": "nested", "expression": "payload.inner.value"},
			map[string]any{"target": "greeting", "expression": `"hello"`},
			map[string]any{"target": "limit", "expression": "42"},
			map[string]any{"target": "flag", "expression": "true"},
			map[string]any{"target": "absent", "expression": "no.such.path"},
		},
	})

	result, err := d.ExecuteStep(context.Background(), step, map[string]any{
		"source": "value",
		"payload": map[string]any{
			"inner": map[string]any{"value": float64(7)},
		},
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	output := result.OutputMap()
	require.NotNil(t, output)
	assert.Equal(t, "value", output["copied"])
	assert.Equal(t, float64(7), output["nested"])
	assert.Equal(t, "hello", output["greeting"])
	assert.Equal(t, float64(42), output["limit"])
	assert.Equal(t, true, output["flag"])
	assert.Nil(t, output["absent"])
}

func TestApprovalStep(t *testing.T) {
	d := New()

	step := makeStep(types.StepTypeApproval, map[string]any{
		"message": "deploy {service} to production?",
	})

	result, err := d.ExecuteStep(context.Background(), step,
		map[string]any{"service": "billing"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.True(t, result.RequiresApproval)
	assert.Equal(t, "waiting_approval", result.Output)
	assert.Equal(t, "deploy billing to production?", result.ApprovalMessage)
}

func TestLLMCallStep(t *testing.T) {
	mock := providers.NewMock("summarized text")
	d := New(WithLLMProvider(mock, llm.Config{Model: "default-model", Temperature: 0.2}))

	step := makeStep(types.StepTypeLLMCall, map[string]any{
		"prompt":        "summarize: {article}",
		"system_prompt": "you are terse",
	})

	result, err := d.ExecuteStep(context.Background(), step,
		map[string]any{"article": "long body"})
	require.NoError(t, err)
	require.True(t, result.Success)

	output := result.OutputMap()
	require.NotNil(t, output)
	assert.Equal(t, "summarized text", output["response"])
	assert.Equal(t, "summarize: long body", output["prompt"])
	assert.Equal(t, "you are terse", output["system_prompt"])
	assert.Contains(t, output, "raw_response")

	requests := mock.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, "default-model", requests[0].Model)
	assert.Equal(t, 0.2, requests[0].Temperature)
}

func TestLLMCallStepWithoutProvider(t *testing.T) {
	d := New()

	step := makeStep(types.StepTypeLLMCall, map[string]any{"prompt": "hi"})
	result, err := d.ExecuteStep(context.Background(), step, map[string]any{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "LLM_NOT_CONFIGURED")
}

type recordingNotifier struct {
	messages []notify.Message
	err      error
}

func (r *recordingNotifier) Notify(ctx context.Context, msg notify.Message) error {
	r.messages = append(r.messages, msg)
	return r.err
}

func TestNotificationStep(t *testing.T) {
	recorder := &recordingNotifier{}
	registry := notify.NewRegistry(nil)
	registry.Register("email", recorder)

	d := New(WithNotifier(registry))
	step := makeStep(types.StepTypeNotification, map[string]any{
		"type":       "email",
		"recipients": []any{"ops@example.com"},
		"subject":    "run {run_id} finished",
		"body":       "status: {status}",
	})

	result, err := d.ExecuteStep(context.Background(), step,
		map[string]any{"run_id": "42", "status": "success"})
	require.NoError(t, err)
	require.True(t, result.Success)

	require.Len(t, recorder.messages, 1)
	assert.Equal(t, "run 42 finished", recorder.messages[0].Subject)
	assert.Equal(t, "status: success", recorder.messages[0].Body)
	assert.Equal(t, []string{"ops@example.com"}, recorder.messages[0].Recipients)
	assert.Equal(t, true, result.OutputMap()["sent"])
}

func TestNotificationStepDeliveryFailureIsNonFatal(t *testing.T) {
	recorder := &recordingNotifier{err: errors.New("smtp unreachable")}
	registry := notify.NewRegistry(nil)
	registry.Register("email", recorder)

	d := New(WithNotifier(registry))
	step := makeStep(types.StepTypeNotification, map[string]any{
		"type":    "email",
		"subject": "s",
		"body":    "b",
	})

	result, err := d.ExecuteStep(context.Background(), step, map[string]any{})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, false, result.OutputMap()["sent"])
	errMsg, ok := result.OutputMap()["error"].(string)
	require.True(t, ok)
	assert.Contains(t, errMsg, "smtp unreachable")
	require.NotEmpty(t, result.Logs)
}

func TestAPICallStep(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/items", r.URL.Path)
		assert.Equal(t, "books", r.URL.Query().Get("category"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items": ["a", "b"]}`))
	}))
	defer server.Close()

	d := New()
	step := makeStep(types.StepTypeAPICall, map[string]any{
		"method": "GET",
		"url":    server.URL + "/v1/items",
		"query_params": map[string]any{
			"category": "{category}",
		},
	})

	result, err := d.ExecuteStep(context.Background(), step,
		map[string]any{"category": "books"})
	require.NoError(t, err)
	require.True(t, result.Success)

	output := result.OutputMap()
	require.NotNil(t, output)
	assert.Equal(t, 200, output["status_code"])
	assert.Equal(t, "success", output["status"])

	data, ok := output["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"a", "b"}, data["items"])
}

func TestAPICallStepBadConfig(t *testing.T) {
	d := New()
	step := makeStep(types.StepTypeAPICall, map[string]any{
		"method": "GET",
		"url":    "http://example.com/path?embedded=1",
	})

	result, err := d.ExecuteStep(context.Background(), step, map[string]any{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "query")
}

func TestPythonScriptStep(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	sb := sandbox.New(sandbox.WithInterpreter("sh"), sandbox.WithTempDir(t.TempDir()))
	d := New(WithSandbox(sb))

	step := makeStep(types.StepTypePythonScript, nil)
	step.Code = `echo '{"answer": 42}'`

	result, err := d.ExecuteStep(context.Background(), step, map[string]any{"in": "x"})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, float64(42), result.OutputMap()["answer"])
}

func TestPythonScriptStepFailure(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	sb := sandbox.New(sandbox.WithInterpreter("sh"), sandbox.WithTempDir(t.TempDir()))
	d := New(WithSandbox(sb))

	step := makeStep(types.StepTypePythonScript, nil)
	step.Code = `echo "broken" >&2; exit 3`

	result, err := d.ExecuteStep(context.Background(), step, map[string]any{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "exited with code 3")
	assert.Contains(t, result.Logs, "broken")
}
