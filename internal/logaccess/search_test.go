package logaccess

import (
	"strings"
	"testing"

	"github.com/silexa/gateway-sidecar/internal/gatewayerr"
)

func TestCompileSafeAcceptsOrdinaryPattern(t *testing.T) {
	p, err := CompileSafe(`error: \d+`)
	if err != nil {
		t.Fatalf("CompileSafe: %v", err)
	}
	if !p.MatchString("error: 404") {
		t.Fatalf("expected match")
	}
}

func TestCompileSafeRejectsOverlongPattern(t *testing.T) {
	pattern := strings.Repeat("a", maxPatternLength+1)
	_, err := CompileSafe(pattern)
	if gatewayerr.KindOf(err) != gatewayerr.InvalidPattern {
		t.Fatalf("expected invalid-pattern, got %v", err)
	}
}

func TestCompileSafeRejectsTooManyCaptureGroups(t *testing.T) {
	var b strings.Builder
	for i := 0; i < maxCaptureGroups+1; i++ {
		b.WriteString("(a)")
	}
	_, err := CompileSafe(b.String())
	if gatewayerr.KindOf(err) != gatewayerr.InvalidPattern {
		t.Fatalf("expected invalid-pattern, got %v", err)
	}
}

func TestCompileSafeRejectsInvalidSyntax(t *testing.T) {
	_, err := CompileSafe("(unterminated")
	if gatewayerr.KindOf(err) != gatewayerr.InvalidPattern {
		t.Fatalf("expected invalid-pattern, got %v", err)
	}
}

func TestCompileSafeAtCaptureGroupBoundaryIsAccepted(t *testing.T) {
	var b strings.Builder
	for i := 0; i < maxCaptureGroups; i++ {
		b.WriteString("(a)")
	}
	if _, err := CompileSafe(b.String()); err != nil {
		t.Fatalf("expected allow exactly at the boundary, got %v", err)
	}
}
