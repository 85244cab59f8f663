package store

import (
	"testing"
	"time"

	"LinkProject/module/inbox/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCursorRoundTrip(t *testing.T) {
	id := primitive.NewObjectID()
	at := time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC)

	gotT, gotID, err := decodeCursor(encodeCursor(at, id))
	if err != nil {
		t.Fatal(err)
	}
	if !gotT.Equal(at) {
		t.Errorf("time = %v, want %v", gotT, at)
	}
	if gotID != id {
		t.Errorf("id = %s, want %s", gotID.Hex(), id.Hex())
	}
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	for _, c := range []string{"not base64!", "bm9waXBl", "", "MTIzNA"} {
		if _, _, err := decodeCursor(c); err == nil {
			t.Errorf("decodeCursor(%q) accepted garbage", c)
		}
	}
}

func TestStateFilter(t *testing.T) {
	if f := stateFilter(model.VisibleActive); f["state"] != model.StateActive {
		t.Errorf("active filter = %v", f)
	}
	if f := stateFilter(model.VisibleDeleted); f["state"] != model.StateDeleted {
		t.Errorf("deleted filter = %v", f)
	}
	if f := stateFilter(model.VisibleAny); len(f) != 0 {
		t.Errorf("any filter must be empty, got %v", f)
	}
}
