package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("socket closed")
	err := Wrap(CodeTimeout, cause, "gateway unreachable")

	if !stdErrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to survive errors.Is")
	}
	if err.Code() != CodeTimeout {
		t.Fatalf("unexpected code %s", err.Code())
	}
}

func TestAsFindsTypedErrorInChain(t *testing.T) {
	inner := New(CodeAmountMismatch, "receipt shows 1500, sale total is 1900")
	outer := fmt.Errorf("verify receipt: %w", inner)

	typed := As(outer)
	if typed == nil {
		t.Fatal("expected typed error")
	}
	if typed.Code() != CodeAmountMismatch {
		t.Fatalf("unexpected code %s", typed.Code())
	}
	if !HasCode(outer, CodeAmountMismatch) {
		t.Fatal("HasCode should match through wrapping")
	}
}

func TestMetadataForUnknownCodeFallsBackToInternal(t *testing.T) {
	meta := MetadataFor(Code("SOMETHING_ELSE"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", meta.HTTPStatus)
	}
}

func TestDomainCodesMapToExpectedStatuses(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:      http.StatusBadRequest,
		CodeNotFound:        http.StatusNotFound,
		CodeAmountMismatch:  http.StatusUnprocessableEntity,
		CodeDuplicateEvent:  http.StatusConflict,
		CodeTimeout:         http.StatusGatewayTimeout,
		CodeGatewayRejected: http.StatusBadGateway,
		CodeAuthentication:  http.StatusBadGateway,
	}
	for code, want := range cases {
		if got := MetadataFor(code).HTTPStatus; got != want {
			t.Errorf("%s: got %d, want %d", code, got, want)
		}
	}
}
