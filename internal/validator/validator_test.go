package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/intervue/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bindBody(t *testing.T, body string, dst any) map[string]string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return Bind(c, dst)
}

func TestInterviewTypeTag(t *testing.T) {
	Setup()

	var req model.StartInterviewRequest
	fields := bindBody(t, `{"interviewType":"quiz"}`, &req)
	require.NotNil(t, fields)
	assert.Equal(t, "interviewType must be one of resume, job-description, topic, company", fields["interviewType"])

	req = model.StartInterviewRequest{}
	assert.Nil(t, bindBody(t, `{"interviewType":"topic","topic":"Go"}`, &req))
	assert.Equal(t, model.InterviewTypeTopic, req.InterviewType)
}

func TestRequiredIfPerType(t *testing.T) {
	Setup()

	var req model.StartInterviewRequest
	fields := bindBody(t, `{"interviewType":"company"}`, &req)
	require.NotNil(t, fields)
	assert.Contains(t, fields, "company")
}

func TestMalformedBody(t *testing.T) {
	Setup()

	var req model.LoginRequest
	fields := bindBody(t, `{"identifier":`, &req)
	require.NotNil(t, fields)
	assert.Contains(t, fields, "detail")
}

func TestBindQuery(t *testing.T) {
	Setup()
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?page=2&pageSize=500", nil)

	var params model.ListParams
	fields := BindQuery(c, &params)
	require.NotNil(t, fields)
	assert.Contains(t, fields, "pageSize")
}
