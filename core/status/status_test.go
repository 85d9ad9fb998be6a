package status

import "testing"

func TestSeverityOrdering(t *testing.T) {
	// METRICS < NO_RESOURCE < NOT_SUCCESS < others.
	if !MoreSevere(NoResource, MetricsUntrustworthy) {
		t.Fatal("NoResource should outrank MetricsUntrustworthy")
	}
	if !MoreSevere(NotSuccess, NoResource) {
		t.Fatal("NotSuccess should outrank NoResource")
	}
	if !MoreSevere(Failure, NotSuccess) {
		t.Fatal("Failure should outrank NotSuccess")
	}
	if !MoreSevere(Signaled, NotSuccess) {
		t.Fatal("Signaled should outrank NotSuccess")
	}
	if MoreSevere(Success, MetricsUntrustworthy) {
		t.Fatal("Success outranks nothing")
	}
}

func TestWorstAccumulator(t *testing.T) {
	var w Worst
	if w.Code() != Success {
		t.Fatalf("zero value code %d", w.Code())
	}
	w.Observe(MetricsUntrustworthy)
	w.Observe(NoResource)
	w.Observe(MetricsUntrustworthy)
	if w.Code() != NoResource {
		t.Fatalf("code %d, want %d", w.Code(), NoResource)
	}
	w.Observe(Signaled)
	w.Observe(NotSuccess)
	if w.Code() != Signaled {
		t.Fatalf("code %d, want %d", w.Code(), Signaled)
	}
}

func TestStringNames(t *testing.T) {
	if String(BySysExit) != "stressor terminated using exit()" {
		t.Fatalf("name %q", String(BySysExit))
	}
	if String(42) != "unknown" {
		t.Fatalf("name %q", String(42))
	}
}
