package index

import (
	"fmt"
	"strings"

	"github.com/NihalShah4/ai-news-research-recommender/internal/models"
)

// Map returns up to k documents with their 2D coordinates. With a query the
// points closest to the projected query are returned, otherwise the first k
// filtered documents in corpus order. Below MinMapDocuments the map is empty.
func (ix *Index) Map(k int, query string, f Filter) (models.MapResult, error) {
	empty := models.MapResult{Points: []models.MapPoint{}}
	if k < 0 {
		return empty, fmt.Errorf("%w: k must not be negative", ErrInvalidArgument)
	}
	if err := validateFilter(f); err != nil {
		return empty, err
	}

	s := ix.snap.Load()
	if s.projection == nil || s.terms == nil {
		return empty, nil
	}
	ids := s.filter(f, ix.cfg.Now())
	if len(ids) == 0 {
		return empty, nil
	}

	var queryPoint *models.Point
	pick := ids[:min(k, len(ids))]
	if query = strings.TrimSpace(query); query != "" {
		qp, err := s.projection.Project(s.terms.Transform(query))
		if err != nil {
			ix.log.Warn("query projection failed, returning unranked points")
		} else {
			queryPoint = &qp
			pick = s.projection.Nearest(qp, ids, k)
		}
	}

	points := make([]models.MapPoint, 0, len(pick))
	for _, i := range pick {
		d := s.docs[i]
		c := s.projection.Coord(i)
		points = append(points, models.MapPoint{
			X:         c.X,
			Y:         c.Y,
			Title:     d.Title,
			URL:       d.URL,
			Source:    d.Source,
			Published: d.Published,
		})
	}
	return models.MapResult{Points: points, QueryPoint: queryPoint}, nil
}
