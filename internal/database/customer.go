package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/duevoice/duevoice/internal/database/models"
)

// customerRepo implements CustomerRepository.
type customerRepo struct {
	db *DB
}

// NewCustomerRepository creates a new CustomerRepository.
func NewCustomerRepository(db *DB) CustomerRepository {
	return &customerRepo{db: db}
}

// Create inserts a new customer.
func (r *customerRepo) Create(ctx context.Context, c *models.Customer) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO customers (name, phone_number, email, account_last_4, postal_code,
		 balance, days_overdue, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))`,
		c.Name, c.PhoneNumber, c.Email, c.AccountLast4, c.PostalCode, c.Balance, c.DaysOverdue,
	)
	if err != nil {
		return fmt.Errorf("inserting customer: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	c.ID = id
	return nil
}

// GetByID returns a customer by ID.
func (r *customerRepo) GetByID(ctx context.Context, id int64) (*models.Customer, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT id, name, phone_number, email, account_last_4, postal_code,
		 balance, days_overdue, created_at, updated_at
		 FROM customers WHERE id = ?`, id,
	))
}

// GetByPhone returns a customer by phone number.
func (r *customerRepo) GetByPhone(ctx context.Context, phone string) (*models.Customer, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT id, name, phone_number, email, account_last_4, postal_code,
		 balance, days_overdue, created_at, updated_at
		 FROM customers WHERE phone_number = ?`, phone,
	))
}

// VerifyIdentity matches a customer on phone number plus both verification
// factors. All three must match exactly; a partial match returns nil.
func (r *customerRepo) VerifyIdentity(ctx context.Context, phone, accountLast4, postalCode string) (*models.Customer, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT id, name, phone_number, email, account_last_4, postal_code,
		 balance, days_overdue, created_at, updated_at
		 FROM customers
		 WHERE phone_number = ? AND account_last_4 = ? AND postal_code = ?`,
		phone, accountLast4, postalCode,
	))
}

// UpdateBalance sets a customer's balance and days overdue.
func (r *customerRepo) UpdateBalance(ctx context.Context, id int64, balance float64, daysOverdue int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE customers SET balance = ?, days_overdue = ?, updated_at = datetime('now')
		 WHERE id = ?`,
		balance, daysOverdue, id,
	)
	if err != nil {
		return fmt.Errorf("updating customer balance: %w", err)
	}
	return nil
}

func (r *customerRepo) scanOne(row *sql.Row) (*models.Customer, error) {
	var c models.Customer
	err := row.Scan(&c.ID, &c.Name, &c.PhoneNumber, &c.Email, &c.AccountLast4, &c.PostalCode,
		&c.Balance, &c.DaysOverdue, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning customer: %w", err)
	}
	return &c, nil
}
