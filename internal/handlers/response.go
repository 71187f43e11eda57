package handlers

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/huntart-chat/internal/errs"
	"github.com/thereayou/huntart-chat/internal/handlers/dto"
)

func respondError(c *gin.Context, err error) {
	status := errs.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": errs.PublicMessage(err)})
}

func parseID(c *gin.Context, param string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(param), 10, 64)
	if err != nil || id == 0 {
		return 0, errs.Protocol("invalid %s", param)
	}
	return uint(id), nil
}

type pagination struct {
	page     int
	pageSize int
}

func (p pagination) limit() int  { return p.pageSize }
func (p pagination) offset() int { return (p.page - 1) * p.pageSize }

// parsePagination читает page/page_size, page_size ограничен maxSize
func parsePagination(c *gin.Context, defaultSize, maxSize int) (pagination, error) {
	p := pagination{page: 1, pageSize: defaultSize}

	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return p, errs.Protocol("invalid page")
		}
		p.page = page
	}
	if raw := c.Query("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			return p, errs.Protocol("invalid page_size")
		}
		p.pageSize = min(size, maxSize)
	}
	return p, nil
}

func pageURL(c *gin.Context, p pagination, page int) *string {
	u := url.URL{Path: c.Request.URL.Path}
	q := c.Request.URL.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(p.pageSize))
	u.RawQuery = q.Encode()
	s := u.String()
	return &s
}

func newPage[T any](c *gin.Context, p pagination, total int64, results []T) dto.Page[T] {
	page := dto.Page[T]{Count: total, Results: results}
	if page.Results == nil {
		page.Results = []T{}
	}
	if int64(p.page*p.pageSize) < total {
		page.Next = pageURL(c, p, p.page+1)
	}
	if p.page > 1 {
		page.Previous = pageURL(c, p, p.page-1)
	}
	return page
}

func notMember(chatID uint) error {
	return errs.Permission("you are not a member of chat %d", chatID)
}
