// Package student содержит доменную модель ученика и его учётной записи.
// Это ядро бизнес-логики - здесь нет внешних зависимостей.
package student

import (
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Role определяет роль пользователя школы.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// IsValid проверяет, что роль корректна.
func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleTeacher, RoleStudent:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// Class - класс (синф), в котором учится ученик.
type Class struct {
	ID   string
	Name string
}

// Student - ученик. Для ядра отчётов только для чтения.
type Student struct {
	ID        string
	FirstName string
	LastName  string

	// Classes в порядке записи; ученик может состоять в нескольких классах.
	Classes []Class

	Active bool
}

// DisplayName возвращает "Имя Фамилия" без лишних пробелов.
func (s Student) DisplayName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// HasMultipleClasses - true, если отчёт нужно группировать по классам.
func (s Student) HasMultipleClasses() bool {
	return len(s.Classes) > 1
}

// ClassNames возвращает названия классов через запятую.
func (s Student) ClassNames() string {
	names := make([]string, 0, len(s.Classes))
	for _, c := range s.Classes {
		if c.Name != "" {
			names = append(names, c.Name)
		}
	}
	return strings.Join(names, ", ")
}

// ClassIDs возвращает идентификаторы классов.
func (s Student) ClassIDs() []string {
	ids := make([]string, 0, len(s.Classes))
	for _, c := range s.Classes {
		ids = append(ids, c.ID)
	}
	return ids
}

// Account - учётная запись пользователя школы с паролем.
// Используется только при привязке чата к ученику.
type Account struct {
	Student
	Username     string
	PasswordHash string
	Role         Role
}

// NormalizeUsername приводит логин к виду, в котором он хранится.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
