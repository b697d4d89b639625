package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	nanoid "github.com/jaevor/go-nanoid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/jhoicas/TioCoco-api/internal/application/dto"
	"github.com/jhoicas/TioCoco-api/internal/domain"
	"github.com/jhoicas/TioCoco-api/internal/domain/entity"
	"github.com/jhoicas/TioCoco-api/internal/domain/repository"
)

// productIDLength largo de los IDs asignados por el almacén.
const productIDLength = 20

// RateReader tasa vigente para calcular precios en Bs.
type RateReader interface {
	Current() entity.Rate
}

// ProductUseCase casos de uso CRUD del catálogo. El stock por ventas se maneja en el libro de ventas.
type ProductUseCase struct {
	repo  repository.ProductRepository
	rates RateReader
	newID func() string
	now   func() time.Time
}

// NewProductUseCase construye el caso de uso.
func NewProductUseCase(repo repository.ProductRepository, rates RateReader) (*ProductUseCase, error) {
	gen, err := nanoid.Standard(productIDLength)
	if err != nil {
		return nil, fmt.Errorf("id generator: %w", err)
	}
	return &ProductUseCase{repo: repo, rates: rates, newID: gen, now: time.Now}, nil
}

// Create crea un nuevo producto con ID asignado.
func (uc *ProductUseCase) Create(ctx context.Context, in dto.CreateProductRequest) (*dto.ProductResponse, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || in.Quantity < 0 || !in.UnitPriceUSD.IsPositive() {
		return nil, domain.ErrInvalidInput
	}
	now := uc.now()
	product := &entity.Product{
		ID:           uc.newID(),
		Name:         name,
		Quantity:     in.Quantity,
		UnitPriceUSD: in.UnitPriceUSD,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := uc.repo.Create(ctx, product); err != nil {
		return nil, err
	}
	return uc.toResponse(product, uc.currentRate()), nil
}

// GetByID obtiene un producto por ID.
func (uc *ProductUseCase) GetByID(ctx context.Context, id string) (*dto.ProductResponse, error) {
	product, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domain.ErrNotFound
	}
	return uc.toResponse(product, uc.currentRate()), nil
}

// Update actualiza nombre, precio y/o cantidad (reposición manual).
func (uc *ProductUseCase) Update(ctx context.Context, id string, in dto.UpdateProductRequest) (*dto.ProductResponse, error) {
	product, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domain.ErrNotFound
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, domain.ErrInvalidInput
		}
		product.Name = name
	}
	if in.Quantity != nil {
		if *in.Quantity < 0 {
			return nil, domain.ErrInvalidInput
		}
		product.Quantity = *in.Quantity
	}
	if in.UnitPriceUSD != nil {
		if !in.UnitPriceUSD.IsPositive() {
			return nil, domain.ErrInvalidInput
		}
		product.UnitPriceUSD = *in.UnitPriceUSD
	}
	product.UpdatedAt = uc.now()
	if err := uc.repo.Update(ctx, product); err != nil {
		return nil, err
	}
	return uc.toResponse(product, uc.currentRate()), nil
}

// List lista productos con paginación.
func (uc *ProductUseCase) List(ctx context.Context, page dto.PageRequest) (*dto.ProductListResponse, error) {
	page.DefaultPage()
	list, err := uc.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	total := len(list)
	start := min(page.Offset, total)
	end := min(start+page.Limit, total)

	rate := uc.currentRate()
	items := make([]dto.ProductResponse, 0, end-start)
	for _, p := range list[start:end] {
		items = append(items, *uc.toResponse(p, rate))
	}
	return &dto.ProductListResponse{
		Items: items,
		Page:  dto.PageResponse{Limit: page.Limit, Offset: page.Offset, Total: total},
	}, nil
}

// Search busca por nombre sin distinguir mayúsculas ni acentos ("cafe" encuentra "Café").
func (uc *ProductUseCase) Search(ctx context.Context, query string) ([]dto.ProductResponse, error) {
	list, err := uc.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	q := foldText(strings.TrimSpace(query))
	rate := uc.currentRate()
	out := make([]dto.ProductResponse, 0)
	for _, p := range list {
		if q == "" || strings.Contains(foldText(p.Name), q) {
			out = append(out, *uc.toResponse(p, rate))
		}
	}
	return out, nil
}

// Delete elimina un producto por ID. Las ventas pasadas conservan su copia del producto.
func (uc *ProductUseCase) Delete(ctx context.Context, id string) error {
	return uc.repo.Delete(ctx, id)
}

func (uc *ProductUseCase) currentRate() float64 {
	if uc.rates == nil {
		return 0
	}
	return uc.rates.Current().Value
}

func (uc *ProductUseCase) toResponse(p *entity.Product, rate float64) *dto.ProductResponse {
	return &dto.ProductResponse{
		ID:           p.ID,
		Name:         p.Name,
		Quantity:     p.Quantity,
		UnitPriceUSD: p.UnitPriceUSD,
		PriceLocal:   p.PriceLocal(rate),
		Rate:         rate,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

// foldText minúsculas sin marcas diacríticas.
func foldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}
