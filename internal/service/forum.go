package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	apperrors "truefantix/internal/errors"
	"truefantix/internal/models"
	"truefantix/internal/repository"

	"github.com/google/uuid"
)

const (
	defaultThreadLimit = 20
	maxThreadLimit     = 50
	topicOther         = "OTHER"
)

var topicTypes = []string{"ARTIST", "TEAM", "SHOW", topicOther}

type ForumService struct {
	*base
}

// ListThreads - видимые темы, новые первыми; администратор видит и скрытые
func (s *ForumService) ListThreads(ctx context.Context, viewer *models.User, filter models.ThreadFilter) (*models.ThreadPage, error) {
	filter.Limit = clampLimit(filter.Limit, defaultThreadLimit, maxThreadLimit)
	filter.IncludeHidden = viewer != nil && viewer.IsAdmin()
	if filter.TopicType != "" {
		filter.TopicType = normalizeTopicType(filter.TopicType)
	}

	threads, err := s.repos().Forum.ListThreads(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	page := &models.ThreadPage{Threads: threads}
	if page.Threads == nil {
		page.Threads = []models.ForumThread{}
	}
	if len(threads) == filter.Limit {
		page.NextCursor = &threads[len(threads)-1].ID
	}
	return page, nil
}

// CreateThread создает тему вместе с первым сообщением
func (s *ForumService) CreateThread(ctx context.Context, author *models.User, req *models.CreateThreadRequest) (*models.ThreadView, error) {
	title := strings.TrimSpace(req.Title)
	body := strings.TrimSpace(req.Body)
	if n := utf8.RuneCountInString(title); n < 3 || n > 140 {
		return nil, apperrors.Validation("Title must be between 3 and 140 characters.")
	}
	if err := validatePostBody(body); err != nil {
		return nil, err
	}

	now := s.now()
	thread := &models.ForumThread{
		ID:           uuid.New().String(),
		AuthorUserID: author.ID,
		Title:        title,
		TopicType:    normalizeTopicType(req.TopicType),
		Topic:        strings.TrimSpace(req.Topic),
		IsVisible:    true,
		PostCount:    1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	post := &models.ForumPost{
		ID:           uuid.New().String(),
		ThreadID:     thread.ID,
		AuthorUserID: author.ID,
		Body:         body,
		CreatedAt:    now,
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		if err := r.Forum.CreateThread(ctx, thread); err != nil {
			return fmt.Errorf("failed to create thread: %w", err)
		}
		if err := r.Forum.CreatePost(ctx, post); err != nil {
			return fmt.Errorf("failed to create post: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &models.ThreadView{Thread: thread, Posts: []models.ForumPost{*post}}, nil
}

func (s *ForumService) GetThread(ctx context.Context, viewer *models.User, id string) (*models.ThreadView, error) {
	r := s.repos()
	thread, err := s.visibleThread(ctx, r, viewer, id)
	if err != nil {
		return nil, err
	}
	posts, err := r.Forum.ListPosts(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	if posts == nil {
		posts = []models.ForumPost{}
	}
	return &models.ThreadView{Thread: thread, Posts: posts}, nil
}

func (s *ForumService) CreatePost(ctx context.Context, author *models.User, threadID string, req *models.CreatePostRequest) (*models.ForumPost, error) {
	body := strings.TrimSpace(req.Body)
	if err := validatePostBody(body); err != nil {
		return nil, err
	}

	r := s.repos()
	thread, err := s.visibleThread(ctx, r, author, threadID)
	if err != nil {
		return nil, err
	}
	if thread.IsLocked {
		return nil, apperrors.Conflict(apperrors.CodeThreadLocked, "This thread is locked.")
	}

	post := &models.ForumPost{
		ID:           uuid.New().String(),
		ThreadID:     thread.ID,
		AuthorUserID: author.ID,
		Body:         body,
		CreatedAt:    s.now(),
	}
	if err := r.Forum.CreatePost(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}
	return post, nil
}

func (s *ForumService) Lock(ctx context.Context, id string, req *models.LockThreadRequest) (*models.ForumThread, error) {
	if req.Locked == nil {
		return nil, apperrors.Validation("locked is required.")
	}
	return s.moderate(ctx, id, func(r *repository.Repositories, t *models.ForumThread) error {
		t.IsLocked = *req.Locked
		return r.Forum.SetLocked(ctx, id, *req.Locked, s.now())
	})
}

func (s *ForumService) SetVisibility(ctx context.Context, id string, req *models.ThreadVisibilityRequest) (*models.ForumThread, error) {
	if req.Visible == nil {
		return nil, apperrors.Validation("visible is required.")
	}
	return s.moderate(ctx, id, func(r *repository.Repositories, t *models.ForumThread) error {
		t.IsVisible = *req.Visible
		return r.Forum.SetVisible(ctx, id, *req.Visible, s.now())
	})
}

func (s *ForumService) moderate(ctx context.Context, id string, apply func(r *repository.Repositories, t *models.ForumThread) error) (*models.ForumThread, error) {
	r := s.repos()
	thread, err := r.Forum.GetThread(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}
	if thread == nil {
		return nil, apperrors.NotFound("Thread not found.")
	}
	if err := apply(r, thread); err != nil {
		return nil, fmt.Errorf("failed to update thread: %w", err)
	}
	thread.UpdatedAt = s.now()
	return thread, nil
}

// visibleThread - скрытая тема для всех, кроме администратора, выглядит как несуществующая
func (s *ForumService) visibleThread(ctx context.Context, r *repository.Repositories, viewer *models.User, id string) (*models.ForumThread, error) {
	thread, err := r.Forum.GetThread(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}
	if thread == nil || (!thread.IsVisible && (viewer == nil || !viewer.IsAdmin())) {
		return nil, apperrors.NotFound("Thread not found.")
	}
	return thread, nil
}

func validatePostBody(body string) error {
	if n := utf8.RuneCountInString(body); n < 1 || n > 5000 {
		return apperrors.Validation("Post must be between 1 and 5000 characters.")
	}
	return nil
}

func normalizeTopicType(value string) string {
	t := strings.ToUpper(strings.TrimSpace(value))
	if slices.Contains(topicTypes, t) {
		return t
	}
	return topicOther
}
