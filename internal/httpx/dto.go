package httpx

import (
	"time"

	"github.com/ariefcatur/go-shop-orders/internal/catalog"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/statuses"
	"github.com/ariefcatur/go-shop-orders/internal/users"
)

// Money is always rendered with two decimals as a string.

type productResp struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Price       string     `json:"price"`
	Description *string    `json:"description"`
	Stock       int        `json:"stock"`
	IsAvailable bool       `json:"isAvailable"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

func toProduct(p catalog.Product) productResp {
	return productResp{
		ID:          p.ID,
		Name:        p.Name,
		Price:       p.Price.StringFixed(2),
		Description: p.Description,
		Stock:       p.Stock,
		IsAvailable: p.IsAvailable,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toProducts(ps []catalog.Product) []productResp {
	out := make([]productResp, 0, len(ps))
	for _, p := range ps {
		out = append(out, toProduct(p))
	}
	return out
}

type searchResp struct {
	Page            int           `json:"page"`
	TotalPages      int           `json:"total_pages"`
	ProductsPerPage int           `json:"products_per_page"`
	TotalProducts   int           `json:"total_products"`
	Products        []productResp `json:"products"`
}

type orderLineResp struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type orderResp struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Status     string          `json:"status"`
	TotalPrice string          `json:"total_price"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  *time.Time      `json:"updated_at"`
	Products   []orderLineResp `json:"products,omitempty"`
}

func toOrder(o orders.Order) orderResp {
	resp := orderResp{
		ID:         o.ID,
		UserID:     o.UserID,
		Status:     o.StatusName,
		TotalPrice: o.TotalPrice.StringFixed(2),
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
	for _, l := range o.Lines {
		resp.Products = append(resp.Products, orderLineResp{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return resp
}

type statusResp struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

func toStatus(s statuses.Status) statusResp {
	return statusResp{ID: s.ID, Name: s.Name, CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt}
}

type userResp struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	IsAdmin   bool       `json:"is_admin"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

func toUser(u users.User) userResp {
	return userResp{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		IsAdmin:   u.IsAdmin,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
