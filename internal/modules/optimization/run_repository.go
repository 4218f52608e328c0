package optimization

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/quantumfolio/internal/database"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("optimization run not found")

// RunSummary is the listing view of a stored run.
type RunSummary struct {
	RunID               string    `json:"run_id"`
	CreatedAt           time.Time `json:"created_at"`
	Assets              []string  `json:"assets"`
	Observations        int       `json:"observations"`
	MarketWeightsSource string    `json:"market_weights_source"`
	ExpectedReturn      float64   `json:"expected_return"`
	Volatility          float64   `json:"volatility"`
	Sharpe              float64   `json:"sharpe"`
	VaR                 float64   `json:"var"`
	CVaR                float64   `json:"cvar"`
}

// RunRepository persists completed runs in the runs database.
type RunRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *sql.DB, log zerolog.Logger) *RunRepository {
	return &RunRepository{
		db:  db,
		log: log.With().Str("repo", "optimization_runs").Logger(),
	}
}

// Save stores a run. Saving the same id twice replaces the earlier row.
func (r *RunRepository) Save(result *Result) error {
	if result == nil || result.RunID == "" {
		return fmt.Errorf("run result has no id")
	}
	blob, err := encodeResult(result)
	if err != nil {
		return fmt.Errorf("failed to encode run %s: %w", result.RunID, err)
	}
	assets, err := json.Marshal(result.Assets)
	if err != nil {
		return fmt.Errorf("failed to encode assets for run %s: %w", result.RunID, err)
	}

	err = database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT OR REPLACE INTO optimization_runs
			(id, created_at, assets, observations, weights_source,
			 expected_return, volatility, sharpe, value_at_risk, conditional_value_at_risk, result)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			result.RunID,
			result.CreatedAt.Unix(),
			string(assets),
			result.Observations,
			result.MarketWeightsSource,
			result.Performance.ExpectedReturn,
			result.Performance.Volatility,
			result.Performance.Sharpe,
			result.Risk.VaR,
			result.Risk.CVaR,
			blob,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", result.RunID, err)
	}

	r.log.Debug().Str("run_id", result.RunID).Int("size_bytes", len(blob)).Msg("Saved optimization run")
	return nil
}

// Get loads the full result of a run.
func (r *RunRepository) Get(runID string) (*Result, error) {
	var blob []byte
	err := r.db.QueryRow("SELECT result FROM optimization_runs WHERE id = ?", runID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run %s: %w", runID, err)
	}

	result, err := decodeResult(blob)
	if err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", runID, err)
	}
	return result, nil
}

// List returns up to limit run summaries, newest first.
func (r *RunRepository) List(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(`
		SELECT id, created_at, assets, observations, weights_source,
		       expected_return, volatility, sharpe, value_at_risk, conditional_value_at_risk
		FROM optimization_runs
		ORDER BY created_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	summaries := make([]RunSummary, 0)
	for rows.Next() {
		var s RunSummary
		var createdAt int64
		var assets string
		if err := rows.Scan(&s.RunID, &createdAt, &assets, &s.Observations, &s.MarketWeightsSource,
			&s.ExpectedReturn, &s.Volatility, &s.Sharpe, &s.VaR, &s.CVaR); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		s.CreatedAt = time.Unix(createdAt, 0).UTC()
		if err := json.Unmarshal([]byte(assets), &s.Assets); err != nil {
			return nil, fmt.Errorf("failed to decode assets for run %s: %w", s.RunID, err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return summaries, nil
}

// Delete removes a run.
func (r *RunRepository) Delete(runID string) error {
	res, err := r.db.Exec("DELETE FROM optimization_runs WHERE id = ?", runID)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// Results are encoded with the json field names so stored blobs and API
// payloads share one schema.
func encodeResult(result *Result) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(result); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeResult(blob []byte) (*Result, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(blob))
	dec.SetCustomStructTag("json")
	var result Result
	if err := dec.Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}
