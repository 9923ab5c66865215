package geo

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/trip-dispatch/internal/models"
)

var ErrUnknownDriver = errors.New("unknown driver")

const onlineSet = "drivers:online"

// RedisDirectory stores driver positions in a Redis GEO key, metadata in
// per-driver hashes and availability in a set, so several dispatch
// instances (and the Kafka consumer) can share one view.
type RedisDirectory struct {
	client *redis.Client
	key    string
}

func NewRedisDirectory(addr, password, key string) *RedisDirectory {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisDirectory{client: c, key: key}
}

func (r *RedisDirectory) Upsert(ctx context.Context, d models.Driver) error {
	if _, err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: d.Loc.Lon, Latitude: d.Loc.Lat, Name: d.ID}).Result(); err != nil {
		return err
	}
	if err := r.client.HSet(ctx, metaKey(d.ID), map[string]interface{}{
		"vehicle_category": string(d.Category),
		"rating":           strconv.FormatFloat(d.Rating, 'f', -1, 64),
		"available":        strconv.FormatBool(d.Available),
		"updated":          time.Now().Format(time.RFC3339),
	}).Err(); err != nil {
		return err
	}
	if d.Available {
		return r.client.SAdd(ctx, onlineSet, d.ID).Err()
	}
	return r.client.SRem(ctx, onlineSet, d.ID).Err()
}

func (r *RedisDirectory) UpdateLocation(ctx context.Context, id string, c models.Coord) error {
	_, err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: c.Lon, Latitude: c.Lat, Name: id}).Result()
	if err != nil {
		return err
	}
	return r.client.HSet(ctx, metaKey(id), "updated", time.Now().Format(time.RFC3339)).Err()
}

func (r *RedisDirectory) SetAvailable(ctx context.Context, id string, available bool) error {
	if err := r.client.HSet(ctx, metaKey(id), "available", strconv.FormatBool(available)).Err(); err != nil {
		return err
	}
	if available {
		return r.client.SAdd(ctx, onlineSet, id).Err()
	}
	return r.client.SRem(ctx, onlineSet, id).Err()
}

func (r *RedisDirectory) Get(ctx context.Context, id string) (models.Driver, bool, error) {
	meta, err := r.client.HGetAll(ctx, metaKey(id)).Result()
	if err != nil {
		return models.Driver{}, false, err
	}
	if len(meta) == 0 {
		return models.Driver{}, false, nil
	}
	d := driverFromMeta(id, meta)
	pos, err := r.client.GeoPos(ctx, r.key, id).Result()
	if err == nil && len(pos) == 1 && pos[0] != nil {
		d.Loc = models.Coord{Lat: pos[0].Latitude, Lon: pos[0].Longitude}
	}
	return d, true, nil
}

func (r *RedisDirectory) Available(ctx context.Context) ([]models.Driver, error) {
	ids, err := r.client.SMembers(ctx, onlineSet).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.Driver, 0, len(ids))
	for _, id := range ids {
		d, ok, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok && d.Available {
			out = append(out, d)
		}
	}
	return out, nil
}

func driverFromMeta(id string, meta map[string]string) models.Driver {
	d := models.Driver{ID: id, Category: models.VehicleCategory(meta["vehicle_category"])}
	if v, ok := meta["rating"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			d.Rating = f
		}
	}
	if v, ok := meta["available"]; ok {
		d.Available = v == "true"
	}
	if v, ok := meta["updated"]; ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			d.Updated = t
		}
	}
	return d
}

func metaKey(id string) string { return "driver:meta:" + id }
