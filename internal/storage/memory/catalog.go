package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/florist/internal/domain"
)

// Catalog — in-memory каталог товаров для локального запуска и тестов.
type Catalog struct {
	mu       sync.RWMutex
	products map[int64]domain.Product
}

// NewCatalog создаёт каталог с начальным набором товаров.
func NewCatalog(products ...domain.Product) *Catalog {
	c := &Catalog{products: make(map[int64]domain.Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

// Put добавляет или заменяет товар.
func (c *Catalog) Put(product domain.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[product.ID] = product
}

// GetProducts возвращает найденные товары.
func (c *Catalog) GetProducts(_ context.Context, ids []int64) (map[int64]domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[int64]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

var _ domain.ProductCatalog = (*Catalog)(nil)
