package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/essay-correction-api/internal/models"
	appErrors "github.com/noah-isme/essay-correction-api/pkg/errors"
)

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type essayReader interface {
	FindByID(ctx context.Context, id string) (*models.Essay, error)
}

// Transition guards. Every status change is also enforced by a conditional write in the repository.

func canOpenCorrection(status models.EssayStatus) bool {
	return status == models.EssayStatusPending || status == models.EssayStatusGrading
}

func canSubmitGrade(status models.EssayStatus) bool {
	return status == models.EssayStatusGrading
}

func canDeliver(status models.EssayStatus) bool {
	return status == models.EssayStatusGraded || status == models.EssayStatusSent
}

func canAnnotate(status models.EssayStatus) bool {
	return status == models.EssayStatusGrading || status == models.EssayStatusGraded
}

// requireAnnotations rejects delivery of an essay without highlights.
func requireAnnotations(highlights []models.Highlight) error {
	if len(highlights) == 0 {
		return appErrors.Clone(appErrors.ErrMissingAnnotations, "")
	}
	return nil
}

func invalidState(action string, status models.EssayStatus) error {
	return appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("cannot %s an essay in status %s", action, status))
}

func loadEssay(ctx context.Context, essays essayReader, id string) (*models.Essay, error) {
	essay, err := essays.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "essay not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load essay")
	}
	return essay, nil
}

func requireClaims(claims *models.JWTClaims) error {
	if claims == nil || claims.UserID == "" {
		return appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	return nil
}

// ensureCanView lets students see their own essays and staff see any essay.
func ensureCanView(claims *models.JWTClaims, essay *models.Essay) error {
	if err := requireClaims(claims); err != nil {
		return err
	}
	if claims.HasRole(models.RoleTeacher, models.RoleAdmin, models.RoleSuperAdmin) {
		return nil
	}
	if claims.Role == models.RoleStudent && essay.StudentID == claims.UserID {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "essay belongs to another student")
}

// ensureGrader requires a teacher who either holds the essay or finds it unclaimed.
func ensureGrader(claims *models.JWTClaims, essay *models.Essay) error {
	if err := requireClaims(claims); err != nil {
		return err
	}
	if !claims.HasRole(models.RoleTeacher) {
		return appErrors.Clone(appErrors.ErrForbidden, "teacher role required")
	}
	if essay.TeacherID != nil && *essay.TeacherID != "" && *essay.TeacherID != claims.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "essay is assigned to another teacher")
	}
	return nil
}

func userIDPtr(claims *models.JWTClaims) *string {
	if claims == nil || claims.UserID == "" {
		return nil
	}
	id := claims.UserID
	return &id
}

func recordAudit(ctx context.Context, audit auditLogger, logger *zap.Logger, claims *models.JWTClaims, action, resource, resourceID string, payload interface{}) {
	if audit == nil {
		return
	}
	var newValues []byte
	if payload != nil {
		newValues, _ = json.Marshal(payload)
	}
	id := resourceID
	log := &models.AuditLog{
		UserID:     userIDPtr(claims),
		Action:     action,
		Resource:   resource,
		ResourceID: &id,
		NewValues:  newValues,
		IPAddress:  "system",
		UserAgent:  "essay-service",
	}
	if err := audit.CreateAuditLog(ctx, log); err != nil {
		logger.Warn("failed to record audit", zap.String("action", action), zap.Error(err))
	}
}
