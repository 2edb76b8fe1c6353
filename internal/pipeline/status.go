package pipeline

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/localsignal/gbp-collector/internal/gbp"
	"github.com/localsignal/gbp-collector/internal/places"
	"github.com/localsignal/gbp-collector/internal/warehouse"
)

// Overall status labels derived from the (verified, published) pair.
const (
	StatusActive    = "ACTIVE - Verified & Published"
	StatusClaimed   = "CLAIMED - Not Yet Published"
	StatusPublished = "PUBLISHED - Not Claimed"
	StatusInactive  = "INACTIVE - Not Claimed/Published"
)

// RatingLookup is the slice of the Places client the status source needs.
type RatingLookup interface {
	Enabled() bool
	Lookup(ctx context.Context, placeID string) *places.Rating
}

// StatusSource collects verification/publishing status and ratings, exactly
// one row per location.
type StatusSource struct {
	ratings RatingLookup
	table   string
	log     *slog.Logger
	now     func() time.Time
}

// NewStatusSource builds the location status pipeline source.
func NewStatusSource(ratings RatingLookup, table string, logger *slog.Logger) *StatusSource {
	return &StatusSource{
		ratings: ratings,
		table:   table,
		log:     logger,
		now:     time.Now,
	}
}

func (s *StatusSource) Name() string { return "status" }

func (s *StatusSource) ReadMask() string {
	return "name,title,metadata,storefrontAddress,phoneNumbers,websiteUri"
}

func (s *StatusSource) Table() warehouse.Table {
	return warehouse.Table{
		Name:            s.table,
		PartitionColumn: "check_date",
		Columns: []string{
			"check_date", "check_timestamp",
			"title", "location_id", "phone", "website", "address",
			"overall_status", "verification_status", "publish_status",
			"is_verified", "is_published",
			"rating", "review_count", "has_rating",
			"place_id", "maps_uri", "new_review_uri", "can_delete",
		},
	}
}

// OverallStatus resolves the categorical label from the two flags.
func OverallStatus(verified, published bool) string {
	switch {
	case verified && published:
		return StatusActive
	case verified:
		return StatusClaimed
	case published:
		return StatusPublished
	default:
		return StatusInactive
	}
}

// Collect builds the single status row for a location. A missing, failed or
// disabled rating lookup yields rating 0.0 with has_rating=false; the row is
// produced either way.
func (s *StatusSource) Collect(ctx context.Context, loc gbp.Location) ([]warehouse.Row, error) {
	checkedAt := s.now().UTC()

	verified := loc.Metadata.HasVoiceOfMerchant
	published := loc.Metadata.MapsURI != ""

	verificationStatus := "NOT VERIFIED"
	if verified {
		verificationStatus = "VERIFIED"
	}
	publishStatus := "NOT PUBLISHED"
	if published {
		publishStatus = "PUBLISHED"
	}

	var rating *places.Rating
	if loc.Metadata.PlaceID != "" && s.ratings.Enabled() {
		rating = s.ratings.Lookup(ctx, loc.Metadata.PlaceID)
		if rating == nil && s.log != nil {
			s.log.Warn("could not fetch rating", slog.String("location", loc.Name))
		}
	}

	row := warehouse.Row{
		"check_date":      checkedAt.Format(dateOnly),
		"check_timestamp": checkedAt,

		"title":       orMissing(loc.Title),
		"location_id": orMissing(loc.Name),
		"phone":       loc.PhoneNumbers.PrimaryPhone,
		"website":     loc.WebsiteURI,
		"address":     loc.Address(),

		"overall_status":      OverallStatus(verified, published),
		"verification_status": verificationStatus,
		"publish_status":      publishStatus,
		"is_verified":         verified,
		"is_published":        published,

		"rating":       0.0,
		"review_count": int64(0),
		"has_rating":   false,

		"place_id":       loc.Metadata.PlaceID,
		"maps_uri":       loc.Metadata.MapsURI,
		"new_review_uri": loc.Metadata.NewReviewURI,
		"can_delete":     loc.Metadata.CanDelete,
	}

	if rating != nil {
		row["rating"] = rating.Rating
		row["review_count"] = rating.ReviewCount
		row["has_rating"] = true
	}

	return []warehouse.Row{row}, nil
}

// Enrich computes the status roll-up: verified/published counts, rating
// coverage, average rating and total reviews.
func (s *StatusSource) Enrich(details map[string]any, rows []warehouse.Row) {
	verified, published, withRatings := 0, 0, 0
	ratingSum := 0.0
	totalReviews := int64(0)

	for _, row := range rows {
		if v, _ := row["is_verified"].(bool); v {
			verified++
		}
		if p, _ := row["is_published"].(bool); p {
			published++
		}
		if hr, _ := row["has_rating"].(bool); hr {
			withRatings++
			if r, ok := row["rating"].(float64); ok {
				ratingSum += r
			}
		}
		if rc, ok := row["review_count"].(int64); ok {
			totalReviews += rc
		}
	}

	avgRating := 0.0
	if withRatings > 0 {
		avgRating = math.Round(ratingSum/float64(withRatings)*100) / 100
	}

	details["verified_count"] = verified
	details["published_count"] = published
	details["locations_with_ratings"] = withRatings
	details["average_rating"] = avgRating
	details["total_reviews"] = totalReviews
}
