package tutor

import (
	"context"
	"reflect"
	"testing"
)

func strategyPtr(s strategy) uintptr {
	return reflect.ValueOf(s).Pointer()
}

func TestRouteTurn_Totality(t *testing.T) {
	labels := []Label{
		LabelGreeting,
		LabelCode,
		LabelExplanation,
		LabelChitchat,
		LabelIrrelevant,
	}

	seen := make(map[uintptr]Label, len(labels))
	for _, l := range labels {
		fn := routeTurn(l)
		if fn == nil {
			t.Fatalf("label %q has no strategy", l)
		}
		p := strategyPtr(fn)
		if prev, dup := seen[p]; dup {
			t.Fatalf("labels %q and %q share a strategy", prev, l)
		}
		seen[p] = l
	}
}

func TestRouteTurn_UnknownLabelRefuses(t *testing.T) {
	got := routeTurn(Label("nonsense"))
	if strategyPtr(got) != strategyPtr(routeTurn(LabelIrrelevant)) {
		t.Fatalf("unknown label did not route to the refusal strategy")
	}
}

func TestRefuse_FixedSentenceNoProviderCall(t *testing.T) {
	// nil provider proves no model call is possible on this path
	reply, err := refuse(context.Background(), nil, nil, "What's the capital of France?")
	if err != nil {
		t.Fatalf("refuse returned error: %v", err)
	}
	if reply != RefusalReply {
		t.Fatalf("refuse returned %q, want fixed refusal sentence", reply)
	}
}
