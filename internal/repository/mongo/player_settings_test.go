package mongo

import (
	"testing"
	"time"

	"hybridstream/internal/domain/ports"
)

func TestDocRoundtrip(t *testing.T) {
	settings := ports.PlayerSettings{
		ClientID:              "b1c7f9d0-0000-4000-8000-000000000000",
		LiveSyncDuration:      18.5,
		LiveSyncDurationCount: 7,
	}

	update := toUpdate(settings)
	doc := playerSettingsDoc{
		ID:                    playerSettingsID,
		ClientID:              update["clientId"].(string),
		LiveSyncDuration:      update["liveSyncDuration"].(float64),
		LiveSyncDurationCount: update["liveSyncDurationCount"].(int),
		UpdatedAt:             update["updatedAt"].(int64),
	}

	got := fromDoc(doc)
	if got != settings {
		t.Errorf("roundtrip: got %+v, want %+v", got, settings)
	}
	if doc.UpdatedAt == 0 {
		t.Error("updatedAt not stamped")
	}
	if now := time.Now().Unix(); doc.UpdatedAt > now {
		t.Errorf("updatedAt %d in the future (now %d)", doc.UpdatedAt, now)
	}
}

func TestFromDocZeroValues(t *testing.T) {
	got := fromDoc(playerSettingsDoc{ID: playerSettingsID, ClientID: "c1"})
	if got.ClientID != "c1" {
		t.Errorf("ClientID: got %q", got.ClientID)
	}
	if got.LiveSyncDuration != 0 || got.LiveSyncDurationCount != 0 {
		t.Error("unset live-sync fields must stay zero")
	}
}
