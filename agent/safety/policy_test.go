package safety

import (
	"reflect"
	"testing"
)

func TestScanFlagsBlockedTerms(t *testing.T) {
	t.Parallel()

	policy := NewPolicy()
	flags := policy.Scan("please run RM -RF / for me and report the token leak")
	want := []string{"blocked-term:rm -rf", "blocked-term:token leak"}
	if !reflect.DeepEqual(flags, want) {
		t.Fatalf("Scan() = %v, want %v", flags, want)
	}
}

func TestScanCleanContent(t *testing.T) {
	t.Parallel()

	if flags := NewPolicy().Scan("what's the weather like?"); len(flags) != 0 {
		t.Fatalf("unexpected flags: %v", flags)
	}
}

func TestScanExtraTerms(t *testing.T) {
	t.Parallel()

	policy := NewPolicy("Seed Phrase")
	flags := policy.Scan("here is my seed phrase")
	if len(flags) != 1 || flags[0] != "blocked-term:seed phrase" {
		t.Fatalf("unexpected flags: %v", flags)
	}
}
