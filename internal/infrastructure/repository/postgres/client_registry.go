package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/labflow/internal/core/domain"
)

type ClientRegistry struct {
	db *sql.DB
}

func NewClientRegistry(db *sql.DB) *ClientRegistry {
	return &ClientRegistry{db: db}
}

func (r *ClientRegistry) ListClients(ctx context.Context) ([]domain.ClientRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, full_name, date_of_birth
FROM clients
ORDER BY full_name
`)
	if err != nil {
		return nil, fmt.Errorf("select clients: %w", err)
	}
	defer rows.Close()

	var clients []domain.ClientRecord
	for rows.Next() {
		var client domain.ClientRecord
		if err := rows.Scan(&client.ID, &client.FullName, &client.DateOfBirth); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, client)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clients: %w", err)
	}
	return clients, nil
}
