package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/market-api/internal/httperr"
	"github.com/yourusername/market-api/internal/store"
)

type createProductRequest struct {
	Name        string   `json:"name" binding:"required,max=100"`
	Description string   `json:"description" binding:"required"`
	Price       *int64   `json:"price" binding:"required,gte=0"`
	Tags        []string `json:"tags" binding:"omitempty,dive,max=30"`
	Images      []string `json:"images" binding:"omitempty,dive,max=2048"`
}

type updateProductRequest struct {
	Name        *string   `json:"name" binding:"omitempty,min=1,max=100"`
	Description *string   `json:"description" binding:"omitempty,min=1"`
	Price       *int64    `json:"price" binding:"omitempty,gte=0"`
	Tags        *[]string `json:"tags" binding:"omitempty,dive,max=30"`
	Images      *[]string `json:"images" binding:"omitempty,dive,max=2048"`
}

// CreateProductHandler は POST /products のハンドラーを返します。
func CreateProductHandler(products store.ProductStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		me, ok := principal(c)
		if !ok {
			return
		}
		var req createProductRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.Respond(c, httperr.InvalidInput(err))
			return
		}

		product, err := products.CreateProduct(c.Request.Context(), me.ID, store.ProductInput{
			Name:        req.Name,
			Description: req.Description,
			Price:       *req.Price,
			Tags:        nonNil(req.Tags),
			Images:      nonNil(req.Images),
		})
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, product)
	}
}

// ListProductsHandler は GET /products のハンドラーを返します。keyword は商品名と説明を対象にします。
func ListProductsHandler(products store.ProductStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := parseListQuery(c)
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		list, total, err := products.ListProducts(c.Request.Context(), q)
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, page[store.Product]{List: nonNil(list), TotalCount: total})
	}
}

// GetProductHandler は GET /products/:id のハンドラーを返します。
// isFavorite は閲覧中の利用者のお気に入り状態で、匿名なら false です。
func GetProductHandler(products store.ProductStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseID(c, "id")
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		ctx := c.Request.Context()
		product, err := findProduct(c, products, id)
		if err != nil {
			httperr.Respond(c, err)
			return
		}

		isFavorite := false
		if viewer := principalID(c); viewer != 0 {
			_, err := products.FindFavorite(ctx, viewer, id)
			switch {
			case err == nil:
				isFavorite = true
			case !errors.Is(err, store.ErrNotFound):
				httperr.Respond(c, err)
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"product":    product,
			"isFavorite": isFavorite,
		})
	}
}

// UpdateProductHandler は PATCH /products/:id のハンドラーを返します。出品者のみ変更できます。
func UpdateProductHandler(products store.ProductStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		me, ok := principal(c)
		if !ok {
			return
		}
		id, err := parseID(c, "id")
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		var req updateProductRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.Respond(c, httperr.InvalidInput(err))
			return
		}
		if _, err := ownedProduct(c, products, id, me.ID); err != nil {
			httperr.Respond(c, err)
			return
		}

		updated, err := products.UpdateProduct(c.Request.Context(), id, store.ProductPatch{
			Name:        req.Name,
			Description: req.Description,
			Price:       req.Price,
			Tags:        req.Tags,
			Images:      req.Images,
		})
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

// DeleteProductHandler は DELETE /products/:id のハンドラーを返します。
func DeleteProductHandler(products store.ProductStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		me, ok := principal(c)
		if !ok {
			return
		}
		id, err := parseID(c, "id")
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		if _, err := ownedProduct(c, products, id, me.ID); err != nil {
			httperr.Respond(c, err)
			return
		}
		if err := products.DeleteProduct(c.Request.Context(), id); err != nil {
			httperr.Respond(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// FavoriteProductHandler は POST /products/:id/favorite のハンドラーを返します。
// 既にお気に入り済みなら 409 を返します。
func FavoriteProductHandler(products store.ProductStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		me, ok := principal(c)
		if !ok {
			return
		}
		id, err := parseID(c, "id")
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		if _, err := findProduct(c, products, id); err != nil {
			httperr.Respond(c, err)
			return
		}

		ctx := c.Request.Context()
		if _, err := products.FindFavorite(ctx, me.ID, id); err == nil {
			httperr.Respond(c, httperr.Conflict("Product is already favorited"))
			return
		} else if !errors.Is(err, store.ErrNotFound) {
			httperr.Respond(c, err)
			return
		}

		favorite, err := products.CreateFavorite(ctx, me.ID, id)
		if errors.Is(err, store.ErrConflict) {
			httperr.Respond(c, httperr.Conflict("Product is already favorited"))
			return
		}
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, favorite)
	}
}

// UnfavoriteProductHandler は DELETE /products/:id/favorite のハンドラーを返します。
func UnfavoriteProductHandler(products store.ProductStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		me, ok := principal(c)
		if !ok {
			return
		}
		id, err := parseID(c, "id")
		if err != nil {
			httperr.Respond(c, err)
			return
		}

		ctx := c.Request.Context()
		favorite, err := products.FindFavorite(ctx, me.ID, id)
		if errors.Is(err, store.ErrNotFound) {
			httperr.Respond(c, httperr.NotFound("favorite", id))
			return
		}
		if err != nil {
			httperr.Respond(c, err)
			return
		}
		if err := products.DeleteFavorite(ctx, favorite.ID); err != nil {
			httperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, favorite)
	}
}

func findProduct(c *gin.Context, products store.ProductStore, id int64) (*store.Product, error) {
	product, err := products.FindProductByID(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, httperr.NotFound("product", id)
	}
	return product, err
}

func ownedProduct(c *gin.Context, products store.ProductStore, id, ownerID int64) (*store.Product, error) {
	product, err := findProduct(c, products, id)
	if err != nil {
		return nil, err
	}
	if product.UserID != ownerID {
		return nil, httperr.BadRequest("Product does not belong to the authenticated user")
	}
	return product, nil
}
