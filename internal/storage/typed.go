package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// Get fetches and decodes the record with the given id from set into a
// *T. It is the typed call site the "Data<Entity, Id>" facade in the
// source design collapses to: callers never see raw bytes.
func Get[T any](ctx context.Context, s Storage, set, id string) (*T, error) {
	raw, err := s.GetRaw(ctx, set, id)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, WrapPermanent(fmt.Sprintf("decode %s/%s", set, id), err)
	}
	return &v, nil
}

// Upsert encodes and writes record into set, keyed by record.GetId().
func Upsert[T Identifiable](ctx context.Context, s Storage, set string, record T) error {
	data, err := json.Marshal(record)
	if err != nil {
		return WrapPermanent(fmt.Sprintf("encode %s/%s", set, record.GetId()), err)
	}
	return s.UpsertRaw(ctx, set, record.GetId(), data)
}

// Page decodes a page of records from set into []*T.
func Page[T any](ctx context.Context, s Storage, set string, page, pageSize int) ([]*T, error) {
	raws, err := s.PageRaw(ctx, set, page, pageSize)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(raws))
	for i, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, WrapPermanent(fmt.Sprintf("decode %s page %d item %d", set, page, i), err)
		}
		out = append(out, &v)
	}
	return out, nil
}

// FirstPage is equivalent to Page[T](ctx, s, set, 1, pageSize).
func FirstPage[T any](ctx context.Context, s Storage, set string, pageSize int) ([]*T, error) {
	return Page[T](ctx, s, set, 1, pageSize)
}
