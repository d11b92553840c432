package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"marketplace-service/internal/domain"
	"marketplace-service/internal/repository"

	"github.com/go-redis/redis/v8"
)

const productCacheTTL = 10 * time.Second

// ProductService is the seller side of the catalog. Reads go through the Redis cache when
// one is configured; every write drops the cached copy.
type ProductService struct {
	products    repository.ProductRepository
	redisClient *redis.Client
}

func NewProductService(products repository.ProductRepository) *ProductService {
	return &ProductService{products: products}
}

func (s *ProductService) SetRedisClient(client *redis.Client) {
	s.redisClient = client
}

type ProductInput struct {
	Name        string `json:"name" binding:"required,max=255"`
	Description string `json:"description"`
	Category    string `json:"category" binding:"max=100"`
	Price       int64  `json:"price" binding:"required,min=1"`
	Stock       int64  `json:"stock" binding:"min=0"`
}

func (in ProductInput) validate() error {
	if in.Name == "" || in.Price < 1 || in.Stock < 0 {
		return fmt.Errorf("%w: name, a positive price and a non-negative stock are required", ErrInvalidProduct)
	}
	return nil
}

func (s *ProductService) Create(ctx context.Context, sellerID uint64, in ProductInput) (*domain.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	p := &domain.Product{
		SellerID:    sellerID,
		Name:        in.Name,
		Description: in.Description,
		Category:    in.Category,
		Price:       in.Price,
		Stock:       in.Stock,
	}
	if err := s.products.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Update replaces the editable fields. Only the owning seller or an admin may do it.
func (s *ProductService) Update(ctx context.Context, userID uint64, role domain.Role, id uint64, in ProductInput) (*domain.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	p, err := s.owned(ctx, userID, role, id)
	if err != nil {
		return nil, err
	}

	p.Name = in.Name
	p.Description = in.Description
	p.Category = in.Category
	p.Price = in.Price
	p.Stock = in.Stock
	if err := s.products.Update(ctx, p); err != nil {
		return nil, err
	}
	invalidateProductCache(ctx, s.redisClient, []uint64{p.ID})
	return p, nil
}

// Delete removes the product. Placed orders keep their own copy of name and price.
func (s *ProductService) Delete(ctx context.Context, userID uint64, role domain.Role, id uint64) error {
	p, err := s.owned(ctx, userID, role, id)
	if err != nil {
		return err
	}
	if err := s.products.Delete(ctx, p.ID); err != nil {
		return err
	}
	invalidateProductCache(ctx, s.redisClient, []uint64{p.ID})
	return nil
}

func (s *ProductService) ListForSeller(ctx context.Context, sellerID uint64) ([]domain.Product, error) {
	out, err := s.products.FindBySeller(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Product{}
	}
	return out, nil
}

func (s *ProductService) owned(ctx context.Context, userID uint64, role domain.Role, id uint64) (*domain.Product, error) {
	p, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProductNotFound
	}
	if p.SellerID != userID && role != domain.RoleAdmin {
		return nil, ErrForbidden
	}
	return p, nil
}

// Get reads a product through the Redis cache when one is configured.
func (s *ProductService) Get(ctx context.Context, id uint64) (*domain.Product, error) {
	cacheKey := productCacheKey(id)

	if s.redisClient != nil {
		cached, err := s.redisClient.Get(ctx, cacheKey).Result()
		if err == nil {
			var prod domain.Product
			if err := json.Unmarshal([]byte(cached), &prod); err == nil {
				return &prod, nil
			}
		}
	}

	prod, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if prod == nil {
		return nil, ErrProductNotFound
	}

	if s.redisClient != nil {
		if data, err := json.Marshal(prod); err == nil {
			s.redisClient.Set(ctx, cacheKey, data, productCacheTTL)
		}
	}
	return prod, nil
}

func invalidateProductCache(ctx context.Context, client *redis.Client, ids []uint64) {
	if client == nil || len(ids) == 0 {
		return
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, productCacheKey(id))
	}
	if err := client.Del(ctx, keys...).Err(); err != nil {
		log.Printf("product cache invalidation failed: %v", err)
	}
}

func productCacheKey(id uint64) string {
	return fmt.Sprintf("product:%d", id)
}
