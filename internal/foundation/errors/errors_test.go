package errors

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestBuilderDefaults(t *testing.T) {
	err := NewError(CategoryContent, "boom").Build()
	if err.Severity() != SeverityError || err.RetryStrategy() != RetryNever {
		t.Errorf("unexpected defaults: %s %s", err.Severity(), err.RetryStrategy())
	}
	if err.CanRetry() {
		t.Error("default error must not be retryable")
	}
	if err.Error() != "[content:error] boom" {
		t.Errorf("unexpected text %q", err.Error())
	}
}

func TestWrapErrorKeepsCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := WrapError(cause, CategoryRepository, "failed to save").
		WithContext("path", "/a/b").
		Retryable().
		Build()

	if !stderrors.Is(err, cause) {
		t.Error("expected cause to be reachable")
	}
	if !strings.HasSuffix(err.Error(), ": disk full") {
		t.Errorf("cause missing from %q", err.Error())
	}
	if p, ok := err.Context().String("path"); !ok || p != "/a/b" {
		t.Errorf("expected path context, got %v", err.Context())
	}
	if !err.CanRetry() {
		t.Error("expected retryable error")
	}
}

func TestCategoryConstructors(t *testing.T) {
	cases := []struct {
		err      *ClassifiedError
		category ErrorCategory
		severity ErrorSeverity
		retry    bool
	}{
		{ConfigError("x").Build(), CategoryConfig, SeverityFatal, false},
		{ValidationError("x").Build(), CategoryValidation, SeverityFatal, false},
		{NotFoundError("x").Build(), CategoryNotFound, SeverityError, false},
		{RepositoryError("x").Build(), CategoryRepository, SeverityError, true},
		{LockError("x").Build(), CategoryLock, SeverityWarning, true},
		{ContentError("x").Deferred().Build(), CategoryContent, SeverityError, true},
		{NetworkError("x").Build(), CategoryNetwork, SeverityError, true},
		{DaemonError("x").Build(), CategoryDaemon, SeverityFatal, false},
		{NewError(CategoryInternal, "x").WithRetry(RetryUserAction).Build(), CategoryInternal, SeverityError, false},
	}
	for _, c := range cases {
		if c.err.Category() != c.category || c.err.Severity() != c.severity || c.err.CanRetry() != c.retry {
			t.Errorf("%s: got %s/%s retry=%v", c.category, c.err.Category(), c.err.Severity(), c.err.CanRetry())
		}
	}
}

func TestSentinelMatchesAfterWithContext(t *testing.T) {
	sentinel := LockError("item is locked").Build()
	err := fmt.Errorf("save: %w", sentinel.WithContext("path", "/x"))

	if !stderrors.Is(err, sentinel) {
		t.Error("expected sentinel match")
	}
	if stderrors.Is(err, LockError("item is not locked").Build()) {
		t.Error("different message must not match")
	}
	if len(sentinel.Context()) != 0 {
		t.Error("WithContext must not modify the receiver")
	}
	if !HasCategory(err, CategoryLock) || HasCategory(err, CategoryNotFound) {
		t.Error("unexpected category detection")
	}
	if HasCategory(stderrors.New("plain"), CategoryLock) {
		t.Error("plain errors have no category")
	}
}

func TestBuildReturnsIndependentErrors(t *testing.T) {
	b := NotFoundError("missing").WithContext("unit", "a")
	first := b.Build()
	b.WithContext("unit", "b")
	if u, _ := first.Context().String("unit"); u != "a" {
		t.Errorf("built error changed with builder: %s", u)
	}
}

func TestCLIAdapter(t *testing.T) {
	var stderr bytes.Buffer
	code := -1
	a := NewCLIErrorAdapter(false, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.stderr = &stderr
	a.exit = func(c int) { code = c }

	a.HandleError(NotFoundError("no record for unit").Build())
	if code != 4 || stderr.String() != "Error: no record for unit\n" {
		t.Errorf("got code %d output %q", code, stderr.String())
	}

	stderr.Reset()
	a.HandleError(RepositoryError("database locked").Build())
	if code != 11 || !strings.Contains(stderr.String(), "use -v") {
		t.Errorf("got code %d output %q", code, stderr.String())
	}

	stderr.Reset()
	a.HandleError(stderrors.New("plain"))
	if code != 1 || stderr.String() != "Error: plain\n" {
		t.Errorf("got code %d output %q", code, stderr.String())
	}

	code = -1
	a.HandleError(nil)
	if code != -1 {
		t.Error("nil error must not exit")
	}

	a.verbose = true
	if got := a.FormatError(ContentError("bad").Build()); got != "[content:error] bad" {
		t.Errorf("verbose output %q", got)
	}
}

func TestHTTPAdapter(t *testing.T) {
	a := NewHTTPErrorAdapter(slog.New(slog.NewTextHandler(io.Discard, nil)))
	cases := []struct {
		err  error
		code int
	}{
		{ValidationError("x").Build(), http.StatusBadRequest},
		{NotFoundError("x").Build(), http.StatusNotFound},
		{LockError("x").Build(), http.StatusConflict},
		{RepositoryError("x").Build(), http.StatusServiceUnavailable},
		{EventStoreError("x").Build(), http.StatusInternalServerError},
		{stderrors.New("x"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := a.StatusCodeFor(c.err); got != c.code {
			t.Errorf("%v: expected %d got %d", c.err, c.code, got)
		}
	}

	rec := httptest.NewRecorder()
	a.WriteErrorResponse(rec, httptest.NewRequest(http.MethodGet, "/api/records/x", nil),
		NotFoundError("no record for unit").WithContext("unit", "x").Build())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var body HTTPErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error != "no record for unit" || body.Code != "not_found" || body.Details["unit"] != "x" || body.Retryable {
		t.Errorf("unexpected body %+v", body)
	}
}
