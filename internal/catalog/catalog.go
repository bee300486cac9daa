// Package catalog loads the card catalog once at process startup and
// serves it as a read-only, process-wide singleton — the only mutable
// global state in the server, and it transitions empty -> populated
// exactly once (sync.Once), per spec.md's design notes.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/djorgosz2/car-card-game-server/internal/models"
)

// rawCar mirrors the on-disk shape of a car entry before validation.
type rawCar struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Speed  float64 `json:"speed"`
	HP     float64 `json:"hp"`
	Accel  float64 `json:"accel"`
	Weight float64 `json:"weight"`
	Year   float64 `json:"year"`
}

type rawAction struct {
	ID     string                   `json:"id"`
	Name   string                   `json:"name"`
	Effect *models.EffectDescriptor `json:"effect"`
}

type rawCatalog struct {
	Cars    []rawCar    `json:"cars"`
	Actions []rawAction `json:"actions"`
}

// Catalog is the fixed set of card definitions produced by Load.
type Catalog struct {
	Definitions []*models.CardDefinition
	byID        map[string]*models.CardDefinition
}

// ByID resolves a definition by its identifier.
func (c *Catalog) ByID(id string) (*models.CardDefinition, bool) {
	def, ok := c.byID[id]
	return def, ok
}

// Cars returns every car definition in the catalog, in load order.
func (c *Catalog) Cars() []*models.CardDefinition {
	var cars []*models.CardDefinition
	for _, d := range c.Definitions {
		if d.Kind == models.CardKindCar {
			cars = append(cars, d)
		}
	}
	return cars
}

// Actions returns every action definition in the catalog, in load order.
func (c *Catalog) Actions() []*models.CardDefinition {
	var actions []*models.CardDefinition
	for _, d := range c.Definitions {
		if d.Kind == models.CardKindAction {
			actions = append(actions, d)
		}
	}
	return actions
}

// FromDefinitions builds a Catalog directly from already-constructed
// definitions, bypassing file loading and car validation/ranking. Used by
// tests that need a small, fixed catalog.
func FromDefinitions(defs []*models.CardDefinition) *Catalog {
	cat := &Catalog{byID: make(map[string]*models.CardDefinition, len(defs))}
	for _, def := range defs {
		cat.Definitions = append(cat.Definitions, def)
		cat.byID[def.ID] = def
	}
	return cat
}

// Load reads a catalog from a JSON file. Cars missing or zeroing any of
// speed/hp/accel/weight/year are skipped per spec.md §6. Car ranks are
// computed by normalized weighted scoring across metrics and bucketed into
// S/A/B/C/D by quantile; ranks are informational only and never consulted
// by the engine.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading %s: %w", path, err)
	}

	var raw rawCatalog
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("catalog: parsing %s: %w", path, err)
	}

	cat := &Catalog{byID: make(map[string]*models.CardDefinition)}

	var validCars []rawCar
	for _, rc := range raw.Cars {
		if rc.Speed == 0 || rc.HP == 0 || rc.Accel == 0 || rc.Weight == 0 || rc.Year == 0 {
			continue
		}
		validCars = append(validCars, rc)
	}

	scores := scoreCars(validCars)
	ranks := bucketRanks(scores)

	for i, rc := range validCars {
		def := &models.CardDefinition{
			ID:   rc.ID,
			Name: rc.Name,
			Kind: models.CardKindCar,
			Metrics: models.MetricVector{
				Speed: rc.Speed, HP: rc.HP, Accel: rc.Accel, Weight: rc.Weight, Year: rc.Year,
			},
			Rank: ranks[i],
		}
		cat.Definitions = append(cat.Definitions, def)
		cat.byID[def.ID] = def
	}

	for _, ra := range raw.Actions {
		if ra.Effect == nil {
			return nil, fmt.Errorf("catalog: action %s missing effect descriptor", ra.ID)
		}
		def := &models.CardDefinition{
			ID:     ra.ID,
			Name:   ra.Name,
			Kind:   models.CardKindAction,
			Effect: ra.Effect,
		}
		cat.Definitions = append(cat.Definitions, def)
		cat.byID[def.ID] = def
	}

	return cat, nil
}

// scoreCars computes a normalized weighted score per car: higher is better
// except accel and weight, where lower is better. Each metric is
// min-max normalized across the set before weighting so that metrics with
// larger raw ranges (e.g. year) don't dominate the score.
func scoreCars(cars []rawCar) []float64 {
	if len(cars) == 0 {
		return nil
	}

	type bounds struct{ min, max float64 }
	get := func(rc rawCar, m models.Metric) float64 {
		switch m {
		case models.MetricSpeed:
			return rc.Speed
		case models.MetricHP:
			return rc.HP
		case models.MetricAccel:
			return rc.Accel
		case models.MetricWeight:
			return rc.Weight
		case models.MetricYear:
			return rc.Year
		}
		return 0
	}

	rangeByMetric := make(map[models.Metric]bounds)
	for _, m := range models.Metrics {
		b := bounds{min: get(cars[0], m), max: get(cars[0], m)}
		for _, rc := range cars[1:] {
			v := get(rc, m)
			if v < b.min {
				b.min = v
			}
			if v > b.max {
				b.max = v
			}
		}
		rangeByMetric[m] = b
	}

	const weightPerMetric = 1.0 / 5.0

	scores := make([]float64, len(cars))
	for i, rc := range cars {
		var total float64
		for _, m := range models.Metrics {
			b := rangeByMetric[m]
			v := get(rc, m)
			var normalized float64
			if b.max > b.min {
				normalized = (v - b.min) / (b.max - b.min)
			}
			if models.Metric(m).LowerWins() {
				normalized = 1 - normalized
			}
			total += normalized * weightPerMetric
		}
		scores[i] = total
	}
	return scores
}

// bucketRanks assigns S/A/B/C/D by quantile over scores, highest scores
// getting the best rank.
func bucketRanks(scores []float64) []models.Rank {
	n := len(scores)
	ranks := make([]models.Rank, n)
	if n == 0 {
		return ranks
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return scores[order[i]] > scores[order[j]] })

	buckets := []models.Rank{models.RankS, models.RankA, models.RankB, models.RankC, models.RankD}
	for pos, idx := range order {
		quantile := float64(pos) / float64(n)
		bucket := int(quantile * float64(len(buckets)))
		if bucket >= len(buckets) {
			bucket = len(buckets) - 1
		}
		ranks[idx] = buckets[bucket]
	}
	return ranks
}

var (
	once   sync.Once
	global *Catalog
	loadErr error
)

// Get returns the process-wide catalog singleton, loading it from path on
// first call. Subsequent calls (with any path) return the same instance.
func Get(path string) (*Catalog, error) {
	once.Do(func() {
		global, loadErr = Load(path)
	})
	return global, loadErr
}
