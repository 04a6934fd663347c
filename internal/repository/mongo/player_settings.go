// Package mongo persists engine state that must survive restarts. Only
// the player settings live here; stream and segment state is rebuilt from
// playlists on every run.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"hybridstream/internal/domain/ports"
)

const playerSettingsID = "player"

type playerSettingsDoc struct {
	ID                    string  `bson:"_id"`
	ClientID              string  `bson:"clientId"`
	LiveSyncDuration      float64 `bson:"liveSyncDuration,omitempty"`
	LiveSyncDurationCount int     `bson:"liveSyncDurationCount,omitempty"`
	UpdatedAt             int64   `bson:"updatedAt"`
}

// PlayerSettingsRepository implements ports.PlayerSettingsStore on a
// single upserted document.
type PlayerSettingsRepository struct {
	collection *mongo.Collection
}

func NewPlayerSettingsRepository(client *mongo.Client, dbName string) *PlayerSettingsRepository {
	return &PlayerSettingsRepository{collection: client.Database(dbName).Collection("settings")}
}

func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (r *PlayerSettingsRepository) GetPlayerSettings(ctx context.Context) (ports.PlayerSettings, bool, error) {
	var doc playerSettingsDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": playerSettingsID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ports.PlayerSettings{}, false, nil
		}
		return ports.PlayerSettings{}, false, err
	}
	return fromDoc(doc), true, nil
}

func (r *PlayerSettingsRepository) SetPlayerSettings(ctx context.Context, settings ports.PlayerSettings) error {
	update := bson.M{"$set": toUpdate(settings)}
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": playerSettingsID},
		update,
		options.Update().SetUpsert(true),
	)
	return err
}

func fromDoc(doc playerSettingsDoc) ports.PlayerSettings {
	return ports.PlayerSettings{
		ClientID:              doc.ClientID,
		LiveSyncDuration:      doc.LiveSyncDuration,
		LiveSyncDurationCount: doc.LiveSyncDurationCount,
	}
}

func toUpdate(settings ports.PlayerSettings) bson.M {
	return bson.M{
		"clientId":              settings.ClientID,
		"liveSyncDuration":      settings.LiveSyncDuration,
		"liveSyncDurationCount": settings.LiveSyncDurationCount,
		"updatedAt":             time.Now().Unix(),
	}
}
