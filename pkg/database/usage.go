package database

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/arnavshah/slot-assignment-api/pkg/models"
)

// DefaultRateLimit is the daily request allowance of a new key.
const DefaultRateLimit = 10000

// UsageDelta is what one request adds to a key's daily usage.
type UsageDelta struct {
	Slots       int
	Actors      int
	Assignments int
}

// UsageFromResponse counts the slots touched, the actors given work and the
// surviving assignments of a run.
func UsageFromResponse(resp models.RunResponse) UsageDelta {
	slots := make(map[string]struct{})
	actors := make(map[string]struct{})
	for _, id := range resp.Summary.UnfilledSlots {
		slots[id] = struct{}{}
	}
	for _, a := range resp.Assignments {
		slots[a.SlotID] = struct{}{}
		if a.Blocks() {
			actors[a.ActorID] = struct{}{}
		}
	}
	return UsageDelta{Slots: len(slots), Actors: len(actors), Assignments: resp.Summary.TotalAssignments}
}

// FindOrCreateKey returns the record of key, creating it for name on first use.
func FindOrCreateKey(ctx context.Context, db *gorm.DB, key, name string) (*APIKey, error) {
	var apiKey APIKey
	err := db.WithContext(ctx).Where(APIKey{Key: key}).Attrs(APIKey{
		Name:       name,
		KeyPreview: KeyPreview(key),
		RateLimit:  DefaultRateLimit,
	}).FirstOrCreate(&apiKey).Error
	if err != nil {
		return nil, err
	}
	return &apiKey, nil
}

// KeyPreview masks all but the ends of key.
func KeyPreview(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:3] + "..." + key[len(key)-4:]
}

// RecordUsage adds one request and delta to today's usage row of keyID
func RecordUsage(ctx context.Context, db *gorm.DB, keyID uint, delta UsageDelta) error {
	today := time.Now().Format(models.DateLayout)

	// OnConflict gives a single-query upsert on both Postgres and SQLite
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"request_count":     gorm.Expr("request_count + ?", 1),
			"total_slots":       gorm.Expr("total_slots + ?", delta.Slots),
			"total_actors":      gorm.Expr("total_actors + ?", delta.Actors),
			"total_assignments": gorm.Expr("total_assignments + ?", delta.Assignments),
		}),
	}).Create(&APIUsage{
		KeyID:            keyID,
		Date:             today,
		RequestCount:     1,
		TotalSlots:       delta.Slots,
		TotalActors:      delta.Actors,
		TotalAssignments: delta.Assignments,
	}).Error
	if err != nil {
		return err
	}

	now := time.Now()
	return db.WithContext(ctx).Model(&APIKey{}).Where("id = ?", keyID).Update("last_used", &now).Error
}

// MaxUsageDays bounds the window of a usage report.
const MaxUsageDays = 90

// UsageDay is one calendar day of a key's usage. Days without traffic are zero.
type UsageDay struct {
	Date        string `json:"date"`
	Requests    int    `json:"requests"`
	Slots       int    `json:"slots"`
	Actors      int    `json:"actors"`
	Assignments int    `json:"assignments"`
}

// UsageTotals sums the days of a report.
type UsageTotals struct {
	Requests    int64 `json:"requests"`
	Slots       int64 `json:"slots"`
	Actors      int64 `json:"actors"`
	Assignments int64 `json:"assignments"`
}

// UsageReport is the usage of one key over the last Window days, newest first.
type UsageReport struct {
	KeyID          uint        `json:"key_id"`
	KeyName        string      `json:"key_name"`
	DailyLimit     int         `json:"daily_limit"`
	RemainingToday int         `json:"remaining_today"`
	Window         int         `json:"window_days"`
	Days           []UsageDay  `json:"days"`
	Totals         UsageTotals `json:"totals"`
}

// BuildUsageReport reads the usage rows of key for the days days ending on
// today and fills the gaps with empty days.
func BuildUsageReport(ctx context.Context, db *gorm.DB, key APIKey, days int, today time.Time) (UsageReport, error) {
	days = min(max(days, 1), MaxUsageDays)
	end := today.Format(models.DateLayout)
	start := today.AddDate(0, 0, -(days - 1)).Format(models.DateLayout)

	var rows []APIUsage
	err := db.WithContext(ctx).
		Where("key_id = ? AND date >= ? AND date <= ?", key.ID, start, end).
		Find(&rows).Error
	if err != nil {
		return UsageReport{}, err
	}
	byDate := make(map[string]APIUsage, len(rows))
	for _, r := range rows {
		byDate[r.Date] = r
	}

	report := UsageReport{
		KeyID:      key.ID,
		KeyName:    key.Name,
		DailyLimit: key.RateLimit,
		Window:     days,
		Days:       make([]UsageDay, 0, days),
	}
	for i := 0; i < days; i++ {
		date := today.AddDate(0, 0, -i).Format(models.DateLayout)
		r := byDate[date]
		day := UsageDay{
			Date:        date,
			Requests:    r.RequestCount,
			Slots:       r.TotalSlots,
			Actors:      r.TotalActors,
			Assignments: r.TotalAssignments,
		}
		report.Days = append(report.Days, day)
		report.Totals.Requests += int64(day.Requests)
		report.Totals.Slots += int64(day.Slots)
		report.Totals.Actors += int64(day.Actors)
		report.Totals.Assignments += int64(day.Assignments)
	}
	if key.RateLimit > 0 {
		report.RemainingToday = max(key.RateLimit-report.Days[0].Requests, 0)
	}
	return report, nil
}

// RequestsToday returns how many requests keyID made today.
func RequestsToday(ctx context.Context, db *gorm.DB, keyID uint) (int, error) {
	var usage APIUsage
	err := db.WithContext(ctx).
		Where("key_id = ? AND date = ?", keyID, time.Now().Format(models.DateLayout)).
		Limit(1).Find(&usage).Error
	return usage.RequestCount, err
}
