package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"storefront/internal/domain"
	storepkg "storefront/internal/store"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

var _ storepkg.Store = (*Store)(nil)

type Store struct {
	db *sql.DB
}

// NewStore connects to databaseURL and applies the schema. Safe to call
// against an already migrated database.
func NewStore(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	err := s.db.QueryRowContext(ctx,
		`insert into users(id, email, name, password_hash) values ($1, $2, $3, $4)
		 returning created_at`,
		user.ID, user.Email, user.Name, user.PasswordHash,
	).Scan(&user.CreatedAt)
	if err != nil {
		return domain.User{}, mapErr(err)
	}
	return user, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (domain.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`select id, email, name, password_hash, created_at from users where email = $1`,
		strings.ToLower(strings.TrimSpace(email)),
	))
}

func (s *Store) UserByID(ctx context.Context, id string) (domain.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`select id, email, name, password_hash, created_at from users where id = $1`, id,
	))
}

func (s *Store) scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt); err != nil {
		return domain.User{}, mapErr(err)
	}
	return u, nil
}

const productColumns = `id, name, description, price, image, user_id, created_at, updated_at`

func (s *Store) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return s.scanProduct(s.db.QueryRowContext(ctx,
		`insert into products(id, name, description, price, image, user_id)
		 values ($1, $2, $3, $4, $5, $6)
		 returning `+productColumns,
		p.ID, p.Name, p.Description, p.Price, p.Image, nullString(p.UserID),
	))
}

func (s *Store) UpdateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	return s.scanProduct(s.db.QueryRowContext(ctx,
		`update products
		 set name = $2, description = $3, price = $4, image = $5, updated_at = now()
		 where id = $1
		 returning `+productColumns,
		p.ID, p.Name, p.Description, p.Price, p.Image,
	))
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from products where id = $1`, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return storepkg.ErrNotFound
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	return s.scanProduct(s.db.QueryRowContext(ctx,
		`select `+productColumns+` from products where id = $1`, id,
	))
}

func (s *Store) ListProducts(ctx context.Context, q domain.ProductQuery) (domain.ProductPage, error) {
	where := make([]string, 0, 3)
	args := make([]interface{}, 0, 5)
	if q.Search != "" {
		args = append(args, "%"+escapeLike(q.Search)+"%")
		where = append(where, fmt.Sprintf("name ilike $%d", len(args)))
	}
	if q.MinPrice != nil {
		args = append(args, *q.MinPrice)
		where = append(where, fmt.Sprintf("price >= $%d", len(args)))
	}
	if q.MaxPrice != nil {
		args = append(args, *q.MaxPrice)
		where = append(where, fmt.Sprintf("price <= $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " where " + strings.Join(where, " and ")
	}

	page := domain.ProductPage{Products: []domain.Product{}, Page: max(q.Page, 1), PageSize: q.PageSize}
	if err := s.db.QueryRowContext(ctx, `select count(*) from products`+clause, args...).Scan(&page.Total); err != nil {
		return domain.ProductPage{}, err
	}

	args = append(args, q.PageSize, q.Offset())
	rows, err := s.db.QueryContext(ctx,
		`select `+productColumns+` from products`+clause+
			fmt.Sprintf(` order by created_at desc, id limit $%d offset $%d`, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return domain.ProductPage{}, err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := s.scanProduct(rows)
		if err != nil {
			return domain.ProductPage{}, err
		}
		page.Products = append(page.Products, p)
	}
	return page, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanProduct(row scanner) (domain.Product, error) {
	var p domain.Product
	var owner sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Image, &owner, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Product{}, mapErr(err)
	}
	p.UserID = owner.String
	return p, nil
}

func (s *Store) CartItems(ctx context.Context, userID string) ([]domain.CartItem, error) {
	cartID, err := s.ensureCart(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`select ci.id, ci.product_id, p.name, p.price, p.image, ci.quantity
		 from cart_items ci
		 join products p on p.id = ci.product_id
		 where ci.cart_id = $1
		 order by ci.created_at asc, ci.id`,
		cartID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.CartItem, 0, 8)
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Name, &item.Price, &item.Image, &item.Quantity); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Store) AddToCart(ctx context.Context, userID, productID string, quantity int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `select exists(select 1 from products where id = $1)`, productID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return storepkg.ErrNotFound
	}
	cartID, err := s.ensureCart(ctx, tx, userID)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`insert into cart_items(id, cart_id, product_id, quantity)
		 values ($1, $2, $3, $4)
		 on conflict (cart_id, product_id) do update
		 set quantity = cart_items.quantity + excluded.quantity`,
		uuid.NewString(), cartID, productID, quantity,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `update carts set updated_at = now() where id = $1`, cartID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) SetCartQuantity(ctx context.Context, userID, productID string, quantity int) error {
	cartID, err := s.cartID(ctx, userID)
	if errors.Is(err, storepkg.ErrNotFound) && quantity == 0 {
		return nil
	}
	if err != nil {
		return err
	}
	if quantity == 0 {
		_, err = s.db.ExecContext(ctx, `delete from cart_items where cart_id = $1 and product_id = $2`, cartID, productID)
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`update cart_items set quantity = $3 where cart_id = $1 and product_id = $2`,
		cartID, productID, quantity,
	)
	return err
}

func (s *Store) RemoveFromCart(ctx context.Context, userID, productID string) error {
	return s.SetCartQuantity(ctx, userID, productID, 0)
}

func (s *Store) ClearCart(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from cart_items where cart_id in (select id from carts where user_id = $1)`,
		userID,
	)
	return err
}

func (s *Store) ListOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, user_id, total_amount, status, created_at
		 from orders where user_id = $1
		 order by created_at desc`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 8)
	index := make(map[string]int)
	ids := make([]string, 0, 8)
	for rows.Next() {
		var o domain.Order
		var status string
		if err := rows.Scan(&o.ID, &o.UserID, &o.TotalAmount, &status, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Status = domain.OrderStatus(status)
		o.Items = []domain.OrderItem{}
		index[o.ID] = len(orders)
		ids = append(ids, o.ID)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return orders, nil
	}

	itemRows, err := s.db.QueryContext(ctx,
		`select id, order_id, product_id, name, price, image, quantity
		 from order_items where order_id = any($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var item domain.OrderItem
		var orderID string
		if err := itemRows.Scan(&item.ID, &orderID, &item.ProductID, &item.Name, &item.Price, &item.Image, &item.Quantity); err != nil {
			return nil, err
		}
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	return orders, itemRows.Err()
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *Store) ensureCart(ctx context.Context, q execQuerier, userID string) (string, error) {
	if _, err := q.ExecContext(ctx,
		`insert into carts(id, user_id) values ($1, $2) on conflict (user_id) do nothing`,
		uuid.NewString(), userID,
	); err != nil {
		return "", err
	}
	var id string
	err := q.QueryRowContext(ctx, `select id from carts where user_id = $1`, userID).Scan(&id)
	return id, err
}

func (s *Store) cartID(ctx context.Context, userID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `select id from carts where user_id = $1`, userID).Scan(&id)
	if err != nil {
		return "", mapErr(err)
	}
	return id, nil
}

func mapErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storepkg.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", storepkg.ErrConflict, pqErr.Constraint)
	}
	return err
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func escapeLike(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(v)
}
