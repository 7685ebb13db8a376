package settlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/shadowlabs-sol/shadow-protocol-sub000/crypto"
)

// PostgresStore implements Store with PostgreSQL persistence.
//
// The settlement idempotency guard maps onto the settlements table's
// primary key: CreateSettlement is a single INSERT … ON CONFLICT DO
// NOTHING, so exactly one writer per auction succeeds regardless of how
// many callbacks race.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgresStore opens the database, verifies connectivity, and runs
// migrations.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS auctions (
		auction_id BIGINT PRIMARY KEY,
		creator VARCHAR(128) NOT NULL,
		asset_mint VARCHAR(128) NOT NULL,
		kind VARCHAR(16) NOT NULL,
		status VARCHAR(16) NOT NULL,
		start_time TIMESTAMP WITH TIME ZONE NOT NULL,
		end_time TIMESTAMP WITH TIME ZONE NOT NULL,
		minimum_bid BIGINT NOT NULL,
		reserve_ciphertext BYTEA,
		reserve_nonce BYTEA,
		reserve_pubkey BYTEA,
		starting_price BIGINT NOT NULL DEFAULT 0,
		price_decrease_rate BIGINT NOT NULL DEFAULT 0,
		bid_count INTEGER NOT NULL DEFAULT 0,
		winner VARCHAR(128),
		winning_amount BIGINT NOT NULL DEFAULT 0,
		settled_at TIMESTAMP WITH TIME ZONE,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS bids (
		auction_id BIGINT NOT NULL REFERENCES auctions(auction_id),
		bidder VARCHAR(128) NOT NULL,
		amount_ciphertext BYTEA NOT NULL,
		nonce BYTEA NOT NULL,
		ephemeral_pubkey BYTEA NOT NULL,
		submitted_at TIMESTAMP WITH TIME ZONE NOT NULL,
		is_winner BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (auction_id, bidder)
	);

	CREATE TABLE IF NOT EXISTS settlements (
		auction_id BIGINT PRIMARY KEY,
		id VARCHAR(64) NOT NULL,
		winner VARCHAR(128),
		winning_amount BIGINT NOT NULL,
		settled_at TIMESTAMP WITH TIME ZONE NOT NULL,
		payload BYTEA,
		computation_id VARCHAR(128)
	);

	CREATE INDEX IF NOT EXISTS idx_auctions_status ON auctions(status);
	CREATE INDEX IF NOT EXISTS idx_auctions_end_time ON auctions(end_time);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// CreateAuction persists a new auction record.
func (s *PostgresStore) CreateAuction(ctx context.Context, auction *Auction) error {
	query := `
	INSERT INTO auctions
		(auction_id, creator, asset_mint, kind, status, start_time, end_time, minimum_bid,
		 reserve_ciphertext, reserve_nonce, reserve_pubkey, starting_price, price_decrease_rate, bid_count)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (auction_id) DO NOTHING
	`

	var ciphertext, nonce, ephemeralPub []byte
	if auction.ReserveEnvelope != nil {
		ciphertext = auction.ReserveEnvelope.Ciphertext
		nonce = auction.ReserveEnvelope.Nonce[:]
		ephemeralPub = auction.ReserveEnvelope.EphemeralPublicKey[:]
	}

	res, err := s.db.ExecContext(ctx, query,
		int64(auction.AuctionID),
		auction.Creator.String(),
		auction.AssetMint.String(),
		string(auction.Kind),
		string(auction.Status),
		auction.StartTime,
		auction.EndTime,
		int64(auction.MinimumBid),
		ciphertext,
		nonce,
		ephemeralPub,
		int64(auction.StartingPrice),
		int64(auction.PriceDecreaseRate),
		int64(auction.BidCount),
	)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrAuctionExists
	}
	return nil
}

// FindAuction loads one auction by ID.
func (s *PostgresStore) FindAuction(ctx context.Context, auctionID uint64) (*Auction, error) {
	query := `
	SELECT auction_id, creator, asset_mint, kind, status, start_time, end_time, minimum_bid,
	       reserve_ciphertext, reserve_nonce, reserve_pubkey, starting_price, price_decrease_rate,
	       bid_count, winner, winning_amount, settled_at
	FROM auctions WHERE auction_id = $1
	`

	var (
		auction      Auction
		id           int64
		creator      string
		assetMint    string
		kind         string
		status       string
		minimumBid   int64
		ciphertext   []byte
		nonce        []byte
		ephemeralPub []byte
		startPrice   int64
		decreaseRate int64
		bidCount     int64
		winner       sql.NullString
		winAmount    int64
		settledAt    sql.NullTime
	)

	err := s.db.QueryRowContext(ctx, query, int64(auctionID)).Scan(
		&id, &creator, &assetMint, &kind, &status,
		&auction.StartTime, &auction.EndTime, &minimumBid,
		&ciphertext, &nonce, &ephemeralPub, &startPrice, &decreaseRate,
		&bidCount, &winner, &winAmount, &settledAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAuctionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning auction: %w", err)
	}

	auction.AuctionID = uint64(id)
	auction.Kind = AuctionKind(kind)
	auction.Status = AuctionStatus(status)
	auction.MinimumBid = uint64(minimumBid)
	auction.StartingPrice = uint64(startPrice)
	auction.PriceDecreaseRate = uint64(decreaseRate)
	auction.BidCount = uint32(bidCount)
	auction.WinningAmount = uint64(winAmount)

	if auction.Creator, err = crypto.NewPublicKeyFromString(creator); err != nil {
		return nil, fmt.Errorf("parsing creator key: %w", err)
	}
	if auction.AssetMint, err = crypto.NewPublicKeyFromString(assetMint); err != nil {
		return nil, fmt.Errorf("parsing asset mint: %w", err)
	}
	if winner.Valid && winner.String != "" {
		if auction.Winner, err = crypto.NewPublicKeyFromString(winner.String); err != nil {
			return nil, fmt.Errorf("parsing winner key: %w", err)
		}
	}
	if settledAt.Valid {
		t := settledAt.Time
		auction.SettledAt = &t
	}
	if len(ciphertext) > 0 {
		auction.ReserveEnvelope = envelopeFromColumns(ciphertext, nonce, ephemeralPub)
	}

	return &auction, nil
}

// UpdateAuctionStatus applies the update to the stored auction.
func (s *PostgresStore) UpdateAuctionStatus(ctx context.Context, auctionID uint64, update AuctionUpdate) error {
	query := `
	UPDATE auctions SET
		status = COALESCE(NULLIF($2, ''), status),
		winner = COALESCE($3, winner),
		winning_amount = COALESCE($4, winning_amount),
		settled_at = COALESCE($5, settled_at),
		bid_count = COALESCE($6, bid_count)
	WHERE auction_id = $1
	`

	var winner sql.NullString
	if update.Winner != nil {
		winner = sql.NullString{String: update.Winner.String(), Valid: true}
	}
	var winAmount sql.NullInt64
	if update.WinningAmount != nil {
		winAmount = sql.NullInt64{Int64: int64(*update.WinningAmount), Valid: true}
	}
	var settledAt sql.NullTime
	if update.SettledAt != nil {
		settledAt = sql.NullTime{Time: *update.SettledAt, Valid: true}
	}
	var bidCount sql.NullInt64
	if update.BidCount != nil {
		bidCount = sql.NullInt64{Int64: int64(*update.BidCount), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, query,
		int64(auctionID), string(update.Status), winner, winAmount, settledAt, bidCount)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrAuctionNotFound
	}
	return nil
}

// CreateBid persists a new bid; the (auction_id, bidder) primary key
// enforces one bid per bidder per auction.
func (s *PostgresStore) CreateBid(ctx context.Context, bid *Bid) error {
	query := `
	INSERT INTO bids (auction_id, bidder, amount_ciphertext, nonce, ephemeral_pubkey, submitted_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (auction_id, bidder) DO NOTHING
	`

	res, err := s.db.ExecContext(ctx, query,
		int64(bid.AuctionID),
		bid.Bidder.String(),
		bid.Envelope.Ciphertext,
		bid.Envelope.Nonce[:],
		bid.Envelope.EphemeralPublicKey[:],
		bid.SubmittedAt,
	)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrBidExists
	}
	return nil
}

// ListBids returns all bids for an auction.
func (s *PostgresStore) ListBids(ctx context.Context, auctionID uint64) ([]*Bid, error) {
	query := `
	SELECT bidder, amount_ciphertext, nonce, ephemeral_pubkey, submitted_at, is_winner
	FROM bids WHERE auction_id = $1 ORDER BY submitted_at
	`

	rows, err := s.db.QueryContext(ctx, query, int64(auctionID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []*Bid
	for rows.Next() {
		var (
			bidder       string
			ciphertext   []byte
			nonce        []byte
			ephemeralPub []byte
			bid          Bid
		)
		if err := rows.Scan(&bidder, &ciphertext, &nonce, &ephemeralPub, &bid.SubmittedAt, &bid.IsWinner); err != nil {
			return nil, fmt.Errorf("scanning bid: %w", err)
		}
		bid.AuctionID = auctionID
		if bid.Bidder, err = crypto.NewPublicKeyFromString(bidder); err != nil {
			return nil, fmt.Errorf("parsing bidder key: %w", err)
		}
		bid.Envelope = envelopeFromColumns(ciphertext, nonce, ephemeralPub)
		bids = append(bids, &bid)
	}

	return bids, rows.Err()
}

// MarkBidWinner flips is_winner on the matching bid.
func (s *PostgresStore) MarkBidWinner(ctx context.Context, auctionID uint64, bidder crypto.PublicKey) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE bids SET is_winner = TRUE WHERE auction_id = $1 AND bidder = $2",
		int64(auctionID), bidder.String())
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrBidNotFound
	}
	return nil
}

// CreateSettlement inserts the settlement record atomically. The primary
// key on auction_id makes this the check-and-create primitive the engine's
// idempotency rides on: a conflicting insert affects zero rows and maps to
// ErrSettlementExists.
func (s *PostgresStore) CreateSettlement(ctx context.Context, record *SettlementRecord) error {
	query := `
	INSERT INTO settlements (auction_id, id, winner, winning_amount, settled_at, payload, computation_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (auction_id) DO NOTHING
	`

	var winner sql.NullString
	if record.Winner != nil {
		winner = sql.NullString{String: record.Winner.String(), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, query,
		int64(record.AuctionID),
		record.ID,
		winner,
		int64(record.WinningAmount),
		record.SettledAt,
		record.Payload,
		record.ComputationID,
	)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrSettlementExists
	}
	return nil
}

// FindSettlement loads the settlement record for an auction.
func (s *PostgresStore) FindSettlement(ctx context.Context, auctionID uint64) (*SettlementRecord, error) {
	query := `
	SELECT id, winner, winning_amount, settled_at, payload, computation_id
	FROM settlements WHERE auction_id = $1
	`

	var (
		record    SettlementRecord
		winner    sql.NullString
		winAmount int64
	)
	err := s.db.QueryRowContext(ctx, query, int64(auctionID)).Scan(
		&record.ID, &winner, &winAmount, &record.SettledAt, &record.Payload, &record.ComputationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAuctionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning settlement: %w", err)
	}

	record.AuctionID = auctionID
	record.WinningAmount = uint64(winAmount)
	if winner.Valid && winner.String != "" {
		if record.Winner, err = crypto.NewPublicKeyFromString(winner.String); err != nil {
			return nil, fmt.Errorf("parsing winner key: %w", err)
		}
	}

	return &record, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func envelopeFromColumns(ciphertext, nonce, ephemeralPub []byte) *crypto.Envelope {
	env := &crypto.Envelope{Ciphertext: ciphertext}
	copy(env.Nonce[:], nonce)
	copy(env.EphemeralPublicKey[:], ephemeralPub)
	return env
}
