package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	meta := MetadataFor(CodeSignature)
	if meta.HTTPStatus != http.StatusUnauthorized {
		t.Fatalf("signature failures must map to 401, got %d", meta.HTTPStatus)
	}
	if meta.Retryable {
		t.Fatalf("signature failures are not retryable by the caller")
	}

	meta = MetadataFor(CodeInternal)
	if meta.HTTPStatus != http.StatusInternalServerError || !meta.Retryable {
		t.Fatalf("internal errors must be retryable 500s, got %+v", meta)
	}
}

func TestMetadataForUnknownCodeFallsBack(t *testing.T) {
	meta := MetadataFor(Code("SOMETHING_ELSE"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("unknown codes should fall back to internal, got %d", meta.HTTPStatus)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("db down")
	err := Wrap(CodeDependency, cause, "load offer")

	if !stdErrors.Is(err, cause) {
		t.Fatalf("expected wrapped cause to survive errors.Is")
	}
	if As(err).Code() != CodeDependency {
		t.Fatalf("expected dependency code, got %s", As(err).Code())
	}
}

func TestAsThroughWrappingChain(t *testing.T) {
	typed := New(CodeValidation, "bad ref")
	chained := fmt.Errorf("handling click: %w", typed)

	got := As(chained)
	if got == nil || got.Code() != CodeValidation {
		t.Fatalf("expected typed error through chain, got %v", got)
	}
	if As(stdErrors.New("plain")) != nil {
		t.Fatalf("plain errors should not convert")
	}
}

func TestDumpCollectsChain(t *testing.T) {
	err := Wrap(CodeDependency, stdErrors.New("timeout"), "postback call")
	d := Dump(err)
	if d.Code != CodeDependency {
		t.Fatalf("unexpected code %s", d.Code)
	}
	if len(d.Chain) < 2 {
		t.Fatalf("expected full chain, got %v", d.Chain)
	}
}
