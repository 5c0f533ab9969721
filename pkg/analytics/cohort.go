package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// RetentionChunkSize is the membership-filter width used when checking a cohort
const RetentionChunkSize = 10

// CohortAggregator computes active users, one-day retention and the
// geographic breakdown once a day
type CohortAggregator struct {
	jobBase
	users       UserSource
	out         SnapshotWriter
	sampleLimit int
}

// NewCohortAggregator creates a new cohort aggregator
func NewCohortAggregator(users UserSource, out SnapshotWriter, opts ...Option) *CohortAggregator {
	return &CohortAggregator{
		jobBase: newJobBase(JobUserCohort, opts),
		users:   users,
		out:     out,
	}
}

// WithRetentionSampleLimit caps how many cohort members are checked for
// retention. Zero (the default) checks the whole cohort; a positive limit
// samples the first n members, ordered by creation time.
func (c *CohortAggregator) WithRetentionSampleLimit(n int) *CohortAggregator {
	if n < 0 {
		n = 0
	}
	c.sampleLimit = n
	return c
}

// Name implements Job
func (c *CohortAggregator) Name() string { return JobUserCohort }

// Run computes and writes the user_metrics and geographic_distribution snapshots
func (c *CohortAggregator) Run(ctx context.Context) error {
	now := c.clock()

	var (
		metrics UserMetrics
		geo     GeoDistribution
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := c.activeUsers(gctx, Trailing(now, 24*time.Hour))
		metrics.DAU = n
		return err
	})
	g.Go(func() error {
		n, err := c.activeUsers(gctx, Trailing(now, 7*24*time.Hour))
		metrics.WAU = n
		return err
	})
	g.Go(func() error {
		n, err := c.activeUsers(gctx, Trailing(now, 30*24*time.Hour))
		metrics.MAU = n
		return err
	})
	g.Go(func() error {
		rate, cohort, err := c.retention(gctx, now)
		metrics.D1RetentionRate = rate
		metrics.NewUsers = cohort
		return err
	})
	g.Go(func() error {
		users, err := c.users.ListUserGeo(gctx)
		if err != nil {
			return fmt.Errorf("failed to list user locations: %w", err)
		}
		geo = ComputeGeoDistribution(users)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	userSnap, err := NewSnapshot(KindUserMetrics, PeriodDaily, metrics, now)
	if err != nil {
		return err
	}
	geoSnap, err := NewSnapshot(KindGeographicDistribution, PeriodDaily, geo, now)
	if err != nil {
		return err
	}
	if err := c.out.InsertSnapshots(ctx, userSnap, geoSnap); err != nil {
		return fmt.Errorf("failed to write user snapshots: %w", err)
	}
	c.recorder.SnapshotWritten(string(KindUserMetrics))
	c.recorder.SnapshotWritten(string(KindGeographicDistribution))

	c.logger.WithFields(map[string]interface{}{
		"dau":       metrics.DAU,
		"wau":       metrics.WAU,
		"mau":       metrics.MAU,
		"retention": metrics.D1RetentionRate,
		"new_users": metrics.NewUsers,
		"countries": len(geo.Countries),
	}).Info("User snapshots written")
	return nil
}

// activeUsers counts by last login and falls back to updated_at when the
// primary query fails or finds nobody (records that predate last_login_at)
func (c *CohortAggregator) activeUsers(ctx context.Context, since time.Time) (int, error) {
	n, err := c.users.CountActiveUsers(ctx, ActivityLastLogin, since)
	if err == nil && n > 0 {
		return n, nil
	}
	if err != nil {
		c.logger.WithError(err).Warn("Active user count by last login failed, using updated_at")
	}

	n, err = c.users.CountActiveUsers(ctx, ActivityUpdated, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count active users since %s: %w", since.Format(time.RFC3339), err)
	}
	return n, nil
}

// retention returns the one-day retention rate and the cohort size. The
// cohort is every user created during the UTC day that ended 24h ago.
func (c *CohortAggregator) retention(ctx context.Context, now time.Time) (float64, int, error) {
	cohortStart := StartOfUTCDay(now.Add(-24 * time.Hour))
	cohortEnd := cohortStart.Add(24 * time.Hour)

	ids, err := c.users.ListUserIDsCreatedBetween(ctx, cohortStart, cohortEnd)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list cohort users: %w", err)
	}
	cohortSize := len(ids)
	if c.sampleLimit > 0 && len(ids) > c.sampleLimit {
		ids = ids[:c.sampleLimit]
	}
	if len(ids) == 0 {
		return 0, cohortSize, nil
	}

	cutoff := Trailing(now, 24*time.Hour)
	retained := 0
	for start := 0; start < len(ids); start += RetentionChunkSize {
		end := start + RetentionChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		n, err := c.retainedInChunk(ctx, ids[start:end], cutoff)
		if err != nil {
			return 0, cohortSize, err
		}
		retained += n
	}

	return RetentionRate(retained, len(ids)), cohortSize, nil
}

func (c *CohortAggregator) retainedInChunk(ctx context.Context, ids []string, cutoff time.Time) (int, error) {
	activity, err := c.users.GetUserActivity(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to load cohort activity: %w", err)
	}

	n := CountRetained(activity, cutoff, ActivityLastLogin)
	if n > 0 {
		return n, nil
	}
	return CountRetained(activity, cutoff, ActivityUpdated), nil
}

// CountRetained counts users whose activity field is at or after cutoff
func CountRetained(users []UserActivity, cutoff time.Time, field ActivityField) int {
	n := 0
	for _, u := range users {
		v := u.LastLoginAt
		if field == ActivityUpdated {
			v = u.UpdatedAt
		}
		if ActiveSince(v, cutoff) {
			n++
		}
	}
	return n
}

// RetentionRate is retained/cohort clamped to [0,1]; an empty cohort yields 0
func RetentionRate(retained, cohort int) float64 {
	if cohort <= 0 || retained <= 0 {
		return 0
	}
	if retained >= cohort {
		return 1
	}
	return round(float64(retained)/float64(cohort), 4)
}

// UnknownRegion labels users with a country but no region
const UnknownRegion = "unknown"

// ComputeGeoDistribution tallies users per country and region, largest first
func ComputeGeoDistribution(users []UserGeo) GeoDistribution {
	countries := make(map[string]int)
	regions := make(map[string]int)
	total := 0
	for _, u := range users {
		if u.CountryCode == "" {
			continue
		}
		total++
		countries[u.CountryCode]++
		region := u.Region
		if region == "" {
			region = UnknownRegion
		}
		regions[region]++
	}

	geo := GeoDistribution{
		Countries:             make([]CountryCount, 0, len(countries)),
		Regions:               make([]RegionCount, 0, len(regions)),
		TotalUsersWithGeoData: total,
	}
	for code, n := range countries {
		geo.Countries = append(geo.Countries, CountryCount{CountryCode: code, Count: n})
	}
	for region, n := range regions {
		geo.Regions = append(geo.Regions, RegionCount{Region: region, Count: n})
	}
	sort.Slice(geo.Countries, func(i, j int) bool {
		if geo.Countries[i].Count != geo.Countries[j].Count {
			return geo.Countries[i].Count > geo.Countries[j].Count
		}
		return geo.Countries[i].CountryCode < geo.Countries[j].CountryCode
	})
	sort.Slice(geo.Regions, func(i, j int) bool {
		if geo.Regions[i].Count != geo.Regions[j].Count {
			return geo.Regions[i].Count > geo.Regions[j].Count
		}
		return geo.Regions[i].Region < geo.Regions[j].Region
	})
	return geo
}
