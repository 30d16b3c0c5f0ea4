package sync

import (
	"context"
	stdjson "encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/goccy/go-json"

	"github.com/kimhsiao/tijara/backend/internal/db"
	"github.com/kimhsiao/tijara/backend/internal/errors"
	"github.com/kimhsiao/tijara/backend/internal/logging"
	"github.com/kimhsiao/tijara/backend/internal/models"
	"github.com/kimhsiao/tijara/backend/internal/sync/remote"
	"github.com/kimhsiao/tijara/backend/internal/telemetry"
)

// PullResult summarizes one pull of an entity.
type PullResult struct {
	Entity    string
	Since     time.Time
	Pages     int
	Records   int
	Watermark *time.Time // set when the watermark advanced
}

// Puller fetches server-authored records incrementally.
type Puller struct {
	remote     Remote
	records    db.RecordStore
	watermarks *WatermarkStore
	clock      clock.Clock
	pageLimit  int
}

// NewPuller creates a Puller.
func NewPuller(r Remote, records db.RecordStore, watermarks *WatermarkStore) *Puller {
	return &Puller{
		remote:     r,
		records:    records,
		watermarks: watermarks,
		clock:      clock.New(),
		pageLimit:  remote.DefaultPageLimit,
	}
}

// SetClock replaces the clock used for the pull start time.
func (p *Puller) SetClock(c clock.Clock) {
	p.clock = c
}

// Floor returns the updatedSince bound of the next pull of spec.
func (p *Puller) Floor(ctx context.Context, spec EntitySpec, now time.Time) (time.Time, error) {
	wm, err := p.watermarks.Get(ctx, spec.Name)
	if err != nil {
		if !errors.Is(err, errors.ErrPullDecode) {
			return time.Time{}, err
		}
		logging.WarnWithCode("Ignoring corrupt watermark", string(errors.ErrPullDecode), err,
			map[string]interface{}{"entity": spec.Name})
		wm = nil
	}

	if wm != nil {
		return wm.Add(-spec.SkewBuffer), nil
	}
	if spec.DefaultLookback > 0 {
		return now.Add(-spec.DefaultLookback), nil
	}
	return time.Unix(0, 0).UTC(), nil
}

// Pull pages through the entity's changes since its floor, upserting every
// record. The watermark advances to the pull start time only after the loop
// finished without error.
func (p *Puller) Pull(ctx context.Context, spec EntitySpec) (*PullResult, error) {
	start := p.clock.Now().UTC()
	result := &PullResult{Entity: spec.Name}

	since, err := p.Floor(ctx, spec, start)
	if err != nil {
		return result, err
	}
	result.Since = since

	total := 0
	for page := 0; spec.MaxPages <= 0 || page < spec.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		resp, err := p.remote.Pull(ctx, spec.Name, remote.PullQuery{
			UpdatedSince: since,
			Page:         page,
			Limit:        p.pageLimit,
			Sort:         spec.Sort,
		})
		if err != nil {
			return result, err
		}
		if len(resp.Results) == 0 {
			break
		}

		records, err := decodeRecords(spec, resp.Results)
		if err != nil {
			return result, err
		}
		if err := p.records.UpsertRecords(ctx, records); err != nil {
			return result, err
		}

		result.Pages++
		result.Records += len(records)
		total += len(resp.Results)
		telemetry.RecordsPulled(spec.Name, len(records))

		if total >= resp.Count {
			break
		}
	}

	advanced, err := p.watermarks.Advance(ctx, spec.Name, start)
	if err != nil {
		return result, err
	}
	if advanced {
		result.Watermark = &start
	}

	logging.Info("Pull completed", map[string]interface{}{
		"entity":  spec.Name,
		"since":   since.Format(time.RFC3339Nano),
		"pages":   result.Pages,
		"records": result.Records,
	})
	return result, nil
}

// decodeRecords turns a page of raw results into records. A result that is
// not a JSON object or lacks its id fails the whole page.
func decodeRecords(spec EntitySpec, raw []stdjson.RawMessage) ([]*models.Record, error) {
	idField := spec.IDField
	if idField == "" {
		idField = "_id"
	}

	records := make([]*models.Record, 0, len(raw))
	for i, r := range raw {
		var doc map[string]interface{}
		if err := json.Unmarshal(r, &doc); err != nil || doc == nil {
			return nil, errors.Newf(errors.ErrPullDecode, "%s result %d is not a JSON object", spec.Name, i)
		}

		id, ok := recordID(doc[idField])
		if !ok {
			return nil, errors.Newf(errors.ErrPullDecode, "%s result %d has no %s", spec.Name, i, idField)
		}

		records = append(records, &models.Record{
			EntityName: spec.Name,
			RecordID:   id,
			Doc:        []byte(r),
			UpdatedAt:  updatedAtMillis(doc["updatedAt"]),
		})
	}
	return records, nil
}

func recordID(v interface{}) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, id != ""
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	default:
		return "", false
	}
}

func updatedAtMillis(v interface{}) int64 {
	switch t := v.(type) {
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return 0
		}
		return parsed.UnixMilli()
	case float64:
		return int64(t)
	default:
		return 0
	}
}

// String implements fmt.Stringer for log output.
func (r *PullResult) String() string {
	return fmt.Sprintf("%s: %d records in %d pages since %s", r.Entity, r.Records, r.Pages, r.Since.Format(time.RFC3339))
}
