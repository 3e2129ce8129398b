package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tbone30/card-trader/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given
// connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunityCols = `id, card_name, buy_platform, sell_platform, platform_pair,
	buy_price, buy_shipping, buy_total, sell_price, platform_fee,
	net_sell_amount, profit_amount, profit_margin, risk_score,
	confidence_level, composite_score, buy_item_id, sell_item_id,
	buy_url, sell_url, buy_condition, sell_condition,
	buy_seller_rating, sell_seller_rating, status, created_at, expires_at`

const insertOpportunityQuery = `
	INSERT INTO opportunities (` + opportunityCols + `)
	VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9, $10,
		$11, $12, $13, $14,
		$15, $16, $17, $18,
		$19, $20, $21, $22,
		$23, $24, $25, $26, $27
	)
	ON CONFLICT (id) DO NOTHING`

// InsertBatch writes opportunities in a single batch and returns how many
// rows landed. Partial failure is tolerated: a bad row lowers the count
// instead of failing the whole detection result.
func (s *OpportunityStore) InsertBatch(ctx context.Context, opps []domain.Opportunity) (int, error) {
	if len(opps) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, o := range opps {
		batch.Queue(insertOpportunityQuery,
			o.ID, o.CardName, o.BuyPlatform, o.SellPlatform, o.PlatformPair,
			o.BuyPrice, o.BuyShipping, o.BuyTotal, o.SellPrice, o.PlatformFee,
			o.NetSellAmount, o.ProfitAmount, o.ProfitMargin, o.RiskScore,
			o.ConfidenceLevel, o.CompositeScore, o.BuyItemID, o.SellItemID,
			o.BuyURL, o.SellURL, o.BuyCondition, o.SellCondition,
			o.BuySellerRating, o.SellSellerRating, string(o.Status), o.CreatedAt, o.ExpiresAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	written := 0
	var firstErr error
	for range opps {
		if _, err := br.Exec(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		written++
	}
	if firstErr != nil && written == 0 {
		return 0, fmt.Errorf("postgres: insert opportunity batch: %w", firstErr)
	}
	return written, nil
}

// GetByID retrieves an opportunity by its primary key.
func (s *OpportunityStore) GetByID(ctx context.Context, id string) (domain.Opportunity, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+opportunityCols+` FROM opportunities WHERE id = $1`, id)
	o, err := scanOpportunity(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Opportunity{}, domain.ErrNotFound
		}
		return domain.Opportunity{}, fmt.Errorf("postgres: get opportunity %s: %w", id, err)
	}
	return o, nil
}

// List returns opportunities matching the filter, best composite score first.
func (s *OpportunityStore) List(ctx context.Context, filter domain.OpportunityFilter) ([]domain.Opportunity, error) {
	query := `SELECT ` + opportunityCols + ` FROM opportunities WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.CardName != "" {
		query += fmt.Sprintf(" AND card_name = $%d", argIdx)
		args = append(args, filter.CardName)
		argIdx++
	}
	if filter.PlatformPair != "" {
		query += fmt.Sprintf(" AND platform_pair = $%d", argIdx)
		args = append(args, filter.PlatformPair)
		argIdx++
	}
	if filter.MinProfitMargin != nil {
		query += fmt.Sprintf(" AND profit_margin >= $%d", argIdx)
		args = append(args, *filter.MinProfitMargin)
		argIdx++
	}
	if filter.MaxRiskScore != nil {
		query += fmt.Sprintf(" AND risk_score <= $%d", argIdx)
		args = append(args, *filter.MaxRiskScore)
		argIdx++
	}

	query += " ORDER BY composite_score DESC, created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.Limit)
		argIdx++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	defer rows.Close()

	var opps []domain.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		opps = append(opps, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list opportunities rows: %w", err)
	}
	return opps, nil
}

// CountActiveByCard returns the number of unexpired ACTIVE opportunities for
// one card.
func (s *OpportunityStore) CountActiveByCard(ctx context.Context, cardName string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM opportunities
		 WHERE card_name = $1 AND status = 'ACTIVE' AND expires_at > NOW()`,
		cardName,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count active opportunities for %s: %w", cardName, err)
	}
	return count, nil
}

// MarkExpired flips ACTIVE opportunities past their expiry to EXPIRED and
// returns the number of rows updated.
func (s *OpportunityStore) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE opportunities SET status = 'EXPIRED'
		 WHERE status = 'ACTIVE' AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("postgres: mark expired opportunities: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListExpiredBefore returns EXPIRED opportunities whose expiry passed before
// the cutoff, oldest first, for archiving.
func (s *OpportunityStore) ListExpiredBefore(ctx context.Context, before time.Time, limit int) ([]domain.Opportunity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+opportunityCols+` FROM opportunities
		 WHERE status = 'EXPIRED' AND expires_at < $1
		 ORDER BY expires_at ASC
		 LIMIT $2`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list expired opportunities: %w", err)
	}
	defer rows.Close()

	var opps []domain.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan expired opportunity: %w", err)
		}
		opps = append(opps, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: expired opportunity rows: %w", err)
	}
	return opps, nil
}

// DeleteExpiredBefore purges EXPIRED opportunities older than the cutoff,
// after they have been archived.
func (s *OpportunityStore) DeleteExpiredBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM opportunities WHERE status = 'EXPIRED' AND expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete expired opportunities: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Insights aggregates recent opportunities for one card: average and peak
// profit, average risk, and the busiest platform pairs.
func (s *OpportunityStore) Insights(ctx context.Context, cardName string, since time.Time) (domain.MarketInsights, error) {
	insights := domain.MarketInsights{
		CardName:         cardName,
		TopPlatformPairs: map[string]int{},
		AnalyzedAt:       time.Now().UTC(),
	}

	var total int64
	var avgMargin, maxMargin, avgAmount, maxAmount, avgRisk *decimal.Decimal
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        AVG(profit_margin), MAX(profit_margin),
		        AVG(profit_amount), MAX(profit_amount),
		        AVG(risk_score)
		 FROM opportunities
		 WHERE card_name = $1 AND created_at > $2`,
		cardName, since,
	).Scan(&total, &avgMargin, &maxMargin, &avgAmount, &maxAmount, &avgRisk)
	if err != nil {
		return domain.MarketInsights{}, fmt.Errorf("postgres: insights aggregate for %s: %w", cardName, err)
	}

	insights.TotalOpportunities = int(total)
	if total == 0 {
		return insights, nil
	}
	insights.AvgProfitMargin = *avgMargin
	insights.MaxProfitMargin = *maxMargin
	insights.AvgProfitAmount = *avgAmount
	insights.MaxProfitAmount = *maxAmount
	insights.AvgRiskScore = *avgRisk

	rows, err := s.pool.Query(ctx,
		`SELECT platform_pair, COUNT(*) AS n
		 FROM opportunities
		 WHERE card_name = $1 AND created_at > $2
		 GROUP BY platform_pair
		 ORDER BY n DESC
		 LIMIT 5`,
		cardName, since)
	if err != nil {
		return domain.MarketInsights{}, fmt.Errorf("postgres: insights platform pairs for %s: %w", cardName, err)
	}
	defer rows.Close()

	for rows.Next() {
		var pair string
		var n int
		if err := rows.Scan(&pair, &n); err != nil {
			return domain.MarketInsights{}, fmt.Errorf("postgres: scan platform pair: %w", err)
		}
		insights.TopPlatformPairs[pair] = n
	}
	if err := rows.Err(); err != nil {
		return domain.MarketInsights{}, fmt.Errorf("postgres: insights platform pair rows: %w", err)
	}
	return insights, nil
}

func scanOpportunity(row pgx.Row) (domain.Opportunity, error) {
	var o domain.Opportunity
	var status string
	err := row.Scan(
		&o.ID, &o.CardName, &o.BuyPlatform, &o.SellPlatform, &o.PlatformPair,
		&o.BuyPrice, &o.BuyShipping, &o.BuyTotal, &o.SellPrice, &o.PlatformFee,
		&o.NetSellAmount, &o.ProfitAmount, &o.ProfitMargin, &o.RiskScore,
		&o.ConfidenceLevel, &o.CompositeScore, &o.BuyItemID, &o.SellItemID,
		&o.BuyURL, &o.SellURL, &o.BuyCondition, &o.SellCondition,
		&o.BuySellerRating, &o.SellSellerRating, &status, &o.CreatedAt, &o.ExpiresAt,
	)
	if err != nil {
		return domain.Opportunity{}, err
	}
	o.Status = domain.OpportunityStatus(status)
	return o, nil
}
