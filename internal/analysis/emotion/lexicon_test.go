package emotion

import "testing"

func TestScanSadMessage(t *testing.T) {
	scores := Scan("I'm feeling sad today")
	if scores[Sadness] <= 0 {
		t.Fatalf("expected sadness score, got %v", scores)
	}
	if scores[Sadness] >= 0.75 {
		t.Fatalf("single keyword hit should stay under the high band, got %f", scores[Sadness])
	}
}

func TestScanEmptyMessageIsNeutral(t *testing.T) {
	scores := Scan("   ")
	if scores[Neutral] != neutralConfidence {
		t.Fatalf("expected neutral fallback, got %v", scores)
	}
	if len(scores) != 1 {
		t.Fatalf("expected only neutral, got %v", scores)
	}
}

func TestScanConfidenceRange(t *testing.T) {
	scores := Scan("sad lonely hopeless worthless crying empty miserable heartbroken")
	for label, confidence := range scores {
		if confidence < 0 || confidence > 1 {
			t.Fatalf("confidence out of range for %s: %f", label, confidence)
		}
	}
}

func TestCrisisHit(t *testing.T) {
	phrase, ok := CrisisHit("Honestly I just want to end it all")
	if !ok {
		t.Fatal("expected crisis phrase match")
	}
	if phrase != "end it all" {
		t.Fatalf("unexpected phrase: %s", phrase)
	}
}

func TestCrisisHitNegative(t *testing.T) {
	if _, ok := CrisisHit("I had a rough day at work"); ok {
		t.Fatal("did not expect crisis match")
	}
}

func TestSortedDeterministic(t *testing.T) {
	scores := map[Label]float64{Sadness: 0.6, Fear: 0.6, Joy: 0.2}
	first := Sorted(scores)
	second := Sorted(scores)
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("ordering not stable: %v vs %v", first, second)
		}
	}
	if first[0] != Fear {
		t.Fatalf("expected alphabetical tie-break, got %v", first)
	}
}

func TestAggregateNegativeCapped(t *testing.T) {
	scores := map[Label]float64{Sadness: 0.9, Fear: 0.9, Anger: 0.9}
	if got := AggregateNegative(scores); got != 1 {
		t.Fatalf("expected cap at 1, got %f", got)
	}
}
