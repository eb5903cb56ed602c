package domain

// Role はアクターのロールを表す。認証・セッション管理は上流の責務で、
// ここではロールと操作の対応だけを判定する。
type Role string

const (
	RoleAdmin           Role = "admin"
	RoleSecurityAnalyst Role = "security_analyst"
	RoleAuditor         Role = "auditor"
)

// Operation は権限判定の対象となる操作を表す。
type Operation string

const (
	OpGenerateKey      Operation = "generate_key"
	OpRotateKey        Operation = "rotate_key"
	OpRevokeKey        Operation = "revoke_key"
	OpListKeys         Operation = "list_keys"
	OpEvaluateAnomaly  Operation = "evaluate_anomaly"
	OpListAuditEntries Operation = "list_audit_entries"
	OpVerifyAuditEntry Operation = "verify_audit_entry"
	OpSystemStatus     Operation = "system_status"
)

var rolePermissions = map[Role]map[Operation]bool{
	RoleAdmin: {
		OpGenerateKey:      true,
		OpRotateKey:        true,
		OpRevokeKey:        true,
		OpListKeys:         true,
		OpEvaluateAnomaly:  true,
		OpListAuditEntries: true,
		OpVerifyAuditEntry: true,
		OpSystemStatus:     true,
	},
	RoleSecurityAnalyst: {
		OpGenerateKey:     true,
		OpRotateKey:       true,
		OpRevokeKey:       true,
		OpListKeys:        true,
		OpEvaluateAnomaly: true,
		OpSystemStatus:    true,
	},
	RoleAuditor: {
		OpListAuditEntries: true,
		OpVerifyAuditEntry: true,
		OpSystemStatus:     true,
	},
}

// mutatingOperations は監査エントリのperformedByに記録される操作。
var mutatingOperations = map[Operation]bool{
	OpGenerateKey:     true,
	OpRotateKey:       true,
	OpRevokeKey:       true,
	OpEvaluateAnomaly: true,
}

// Allow は指定されたロールが操作を実行できるか判定する純粋関数。
func Allow(role Role, op Operation) bool {
	return rolePermissions[role][op]
}

// Mutates は操作が状態を変更するかを返す。変更操作は実行主体の特定を
// 必須とする。performedByがnullの監査エントリはシステム起点を意味するため、
// 人間起点の操作を実行主体なしで受け付けてはならない。
func (o Operation) Mutates() bool {
	return mutatingOperations[o]
}
