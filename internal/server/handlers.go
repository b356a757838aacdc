package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"pinpress-api/internal/article"
	"pinpress-api/internal/domain"
	"pinpress-api/internal/pinterest"
	"pinpress-api/internal/topics"
)

type titlesRequest struct {
	Topic  string `json:"topic"`
	Prompt string `json:"prompt"`
}

type articleRequest struct {
	Title   string `json:"title"`
	Keyword string `json:"keyword"`
}

type imageRequest struct {
	Prompt         string   `json:"prompt"`
	SectionPrompts []string `json:"sectionPrompts"`
}

type saveArticleRequest struct {
	Title      string   `json:"title"`
	Keyword    string   `json:"keyword"`
	HTML       string   `json:"html"`
	CoverImage string   `json:"coverImage"`
	Images     []string `json:"images"`
}

type createPinRequest struct {
	AccessToken string `json:"accessToken"`
	ImageURL    string `json:"imageUrl"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link"`
	BoardID     string `json:"boardId"`
}

func badRequest(msg string) error {
	return echo.NewHTTPError(http.StatusBadRequest, msg)
}

func (s *Server) generationContext(c echo.Context) (context.Context, context.CancelFunc) {
	if s.deps.GenerationTimeout <= 0 {
		return context.WithCancel(c.Request().Context())
	}
	return context.WithTimeout(c.Request().Context(), s.deps.GenerationTimeout)
}

func (s *Server) handleTitles(c echo.Context) error {
	var req titlesRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("Invalid request")
	}
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		topic = strings.TrimSpace(req.Prompt)
	}
	if topic == "" {
		return badRequest("Topic is required")
	}

	ctx, cancel := s.generationContext(c)
	defer cancel()
	titles, err := s.deps.Generator.GenerateTitles(ctx, topic)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string][]string{"titles": titles})
}

func (s *Server) handleArticle(c echo.Context) error {
	var req articleRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("Invalid request")
	}
	if strings.TrimSpace(req.Title) == "" {
		return badRequest("Title is required")
	}

	ctx, cancel := s.generationContext(c)
	defer cancel()
	run, err := s.deps.Generator.GenerateArticle(ctx, article.Request{
		OwnerID: ownerID(c),
		Title:   req.Title,
		Keyword: strings.TrimSpace(req.Keyword),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]*domain.Article{"article": run.Article})
}

func (s *Server) handleImage(c echo.Context) error {
	var req imageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("Invalid request")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return badRequest("Prompt is required")
	}

	ctx, cancel := s.generationContext(c)
	defer cancel()
	cover, err := s.deps.Illustrator.CoverImage(ctx, req.Prompt)
	if err != nil {
		return err
	}
	sections := []string{}
	if len(req.SectionPrompts) > 0 {
		if sections, err = s.deps.Illustrator.SectionImages(ctx, req.SectionPrompts); err != nil {
			return err
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"coverImage":    cover,
		"sectionImages": sections,
	})
}

func (s *Server) handleListArticles(c echo.Context) error {
	articles, err := s.deps.Store.FindAllByOwner(c.Request().Context(), ownerID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string][]domain.Article{"articles": articles})
}

func (s *Server) handleCreateArticle(c echo.Context) error {
	var req saveArticleRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("Invalid request")
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.HTML) == "" {
		return badRequest("Title and HTML content are required")
	}

	saved, err := s.deps.Store.Create(c.Request().Context(), &domain.Article{
		OwnerID:    ownerID(c),
		Title:      req.Title,
		Keyword:    req.Keyword,
		HTML:       req.HTML,
		CoverImage: req.CoverImage,
		Images:     req.Images,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]*domain.Article{"article": saved})
}

func (s *Server) handleGetArticle(c echo.Context) error {
	a, err := s.deps.Store.FindOneByOwnerAndID(c.Request().Context(), ownerID(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]*domain.Article{"article": a})
}

func (s *Server) handleDeleteArticle(c echo.Context) error {
	if err := s.deps.Store.DeleteByOwnerAndID(c.Request().Context(), ownerID(c), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleTopics(c echo.Context) error {
	list := []topics.Topic{}
	if s.deps.Topics != nil {
		list = s.deps.Topics.Topics(c.Request().Context())
	}
	return c.JSON(http.StatusOK, map[string][]topics.Topic{"topics": list})
}

func (s *Server) pinterestEnabled() error {
	if s.deps.Pinterest == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Pinterest is not configured")
	}
	return nil
}

func (s *Server) handlePinterestAuth(c echo.Context) error {
	if err := s.pinterestEnabled(); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"authUrl": s.deps.Pinterest.AuthURL(uuid.NewString())})
}

func (s *Server) handlePinterestCallback(c echo.Context) error {
	if err := s.pinterestEnabled(); err != nil {
		return err
	}
	if reason := c.QueryParam("error"); reason != "" {
		return badRequest("Pinterest authorization was denied: " + reason)
	}
	code := c.QueryParam("code")
	if code == "" {
		return badRequest("No code provided")
	}

	token, err := s.deps.Pinterest.Exchange(c.Request().Context(), code)
	if err != nil {
		c.Logger().Errorf("Pinterest OAuth Error: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to authenticate with Pinterest")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"access_token":  token.AccessToken,
		"refresh_token": token.RefreshToken,
	})
}

func (s *Server) handleCreatePin(c echo.Context) error {
	if err := s.pinterestEnabled(); err != nil {
		return err
	}
	var req createPinRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("Invalid request")
	}
	if req.AccessToken == "" || req.ImageURL == "" {
		return badRequest("Access token and image URL are required")
	}

	pin, err := s.deps.Pinterest.CreatePin(c.Request().Context(), req.AccessToken, pinterest.Pin{
		Title:       req.Title,
		Description: req.Description,
		Link:        req.Link,
		BoardID:     req.BoardID,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pin)
}
