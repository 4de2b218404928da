package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"storefront/internal/domain"
	storepkg "storefront/internal/store"
)

type Seed struct {
	Users    []SeedUser    `yaml:"users"`
	Products []SeedProduct `yaml:"products"`
}

type SeedUser struct {
	Email    string `yaml:"email"`
	Name     string `yaml:"name"`
	Password string `yaml:"password"`
}

type SeedProduct struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Price       string `yaml:"price"`
	Image       string `yaml:"image"`
	// Owner is the e-mail of a seeded user.
	Owner string `yaml:"owner"`
}

// LoadSeed reads a YAML seed file.
func LoadSeed(path string) (Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed: %w", err)
	}
	return ParseSeed(raw)
}

func ParseSeed(raw []byte) (Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return Seed{}, fmt.Errorf("parse seed: %w", err)
	}
	for i, p := range seed.Products {
		if strings.TrimSpace(p.Name) == "" {
			return Seed{}, fmt.Errorf("seed product %d: name is required", i)
		}
		price, err := decimal.NewFromString(p.Price)
		if err != nil || price.IsNegative() {
			return Seed{}, fmt.Errorf("seed product %q: invalid price %q", p.Name, p.Price)
		}
	}
	return seed, nil
}

// Apply inserts the seed users and products. Users that already exist are
// reused, so applying the same seed twice only duplicates id-less products.
func (s Seed) Apply(ctx context.Context, st storepkg.Store, hashPassword func(string) (string, error)) error {
	owners := make(map[string]string, len(s.Users))
	for _, u := range s.Users {
		email := strings.ToLower(strings.TrimSpace(u.Email))
		existing, err := st.UserByEmail(ctx, email)
		if err == nil {
			owners[email] = existing.ID
			continue
		}
		if !errors.Is(err, storepkg.ErrNotFound) {
			return fmt.Errorf("seed user %q: %w", email, err)
		}
		hash, err := hashPassword(u.Password)
		if err != nil {
			return fmt.Errorf("seed user %q: %w", email, err)
		}
		created, err := st.CreateUser(ctx, domain.User{Email: email, Name: u.Name, PasswordHash: hash})
		if err != nil {
			return fmt.Errorf("seed user %q: %w", email, err)
		}
		owners[email] = created.ID
	}
	for _, p := range s.Products {
		if p.ID != "" {
			if _, err := st.GetProduct(ctx, p.ID); err == nil {
				continue
			}
		}
		price, _ := decimal.NewFromString(p.Price)
		_, err := st.CreateProduct(ctx, domain.Product{
			ID:          p.ID,
			Name:        strings.TrimSpace(p.Name),
			Description: p.Description,
			Price:       price,
			Image:       p.Image,
			UserID:      owners[strings.ToLower(strings.TrimSpace(p.Owner))],
		})
		if err != nil {
			return fmt.Errorf("seed product %q: %w", p.Name, err)
		}
	}
	return nil
}
