package repository

import (
	"context"
	"database/sql"
	"fmt"

	"voltwatch-alert/internal/models"

	"go.uber.org/zap"
)

// AlertRulesRepository 预警规则仓库
// 规则由用户侧维护（外部），这里只读
type AlertRulesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertRulesRepository 创建预警规则仓库
func NewAlertRulesRepository(db *sql.DB, logger *zap.Logger) *AlertRulesRepository {
	return &AlertRulesRepository{
		db:     db,
		logger: logger,
	}
}

// GetEnabledRule 获取用户在某条件类型下启用的规则
// 唯一性约束保证每个 (user_id, condition_type) 最多一条启用规则
// 未配置规则返回 (nil, nil)，这是"未启用预警"的正常状态
func (r *AlertRulesRepository) GetEnabledRule(ctx context.Context, userID string, conditionType models.ConditionType) (*models.AlertRule, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	if conditionType == "" {
		return nil, fmt.Errorf("condition_type is required")
	}

	query := `
		SELECT
			id,
			user_id,
			name,
			condition_type,
			level,
			threshold_value,
			cooldown_minutes,
			enabled,
			created_at,
			updated_at
		FROM alert_rules
		WHERE user_id = $1
		  AND condition_type = $2
		  AND enabled = true
	`

	var rule models.AlertRule
	err := r.db.QueryRowContext(ctx, query, userID, conditionType).Scan(
		&rule.ID,
		&rule.UserID,
		&rule.Name,
		&rule.ConditionType,
		&rule.Level,
		&rule.ThresholdValue,
		&rule.CooldownMinutes,
		&rule.Enabled,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get enabled rule: %w", err)
	}

	return &rule, nil
}

// ListEnabledRules 获取用户所有启用的规则
func (r *AlertRulesRepository) ListEnabledRules(ctx context.Context, userID string) ([]*models.AlertRule, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	query := `
		SELECT
			id,
			user_id,
			name,
			condition_type,
			level,
			threshold_value,
			cooldown_minutes,
			enabled,
			created_at,
			updated_at
		FROM alert_rules
		WHERE user_id = $1
		  AND enabled = true
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled rules: %w", err)
	}
	defer rows.Close()

	rules := []*models.AlertRule{}
	for rows.Next() {
		var rule models.AlertRule
		err := rows.Scan(
			&rule.ID,
			&rule.UserID,
			&rule.Name,
			&rule.ConditionType,
			&rule.Level,
			&rule.ThresholdValue,
			&rule.CooldownMinutes,
			&rule.Enabled,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, &rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rules: %w", err)
	}

	return rules, nil
}
