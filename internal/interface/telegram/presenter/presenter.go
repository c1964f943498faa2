// Package presenter holds the guardian-facing texts and keyboards of the bot
// (Uzbek, Telegram Markdown).
package presenter

import (
	"fmt"

	"github.com/maktab/baho-bot/internal/domain/shared"
	"github.com/maktab/baho-bot/internal/domain/student"
	"github.com/maktab/baho-bot/internal/infrastructure/external/telegram"
)

// ══════════════════════════════════════════════════════════════════════════════
// BUTTONS
// ══════════════════════════════════════════════════════════════════════════════

// Reply keyboard buttons. Pressing one sends its text as a message.
const (
	BtnStart    = "🚀 Boshlash"
	BtnMyGrades = "📊 Bugungi baholar"
	BtnSettings = "⚙️ Sozlamalar"
	BtnHelp     = "❓ Yordam"
	BtnUnlink   = "🔓 Bog'lanishni bekor qilish"
	BtnToggle   = "🔔 Bildirishnomalarni o'zgartirish"
	BtnYes      = "✅ Ha"
	BtnNo       = "❌ Yo'q"
)

// Callback data of inline buttons.
const (
	CallbackToggleOn      = "toggle_notif_true"
	CallbackToggleOff     = "toggle_notif_false"
	CallbackTogglePrefix  = "toggle_notif_"
	CallbackUnlink        = "unlink"
	CallbackConfirmUnlink = "confirm_unlink"
	CallbackCancelUnlink  = "cancel_unlink"
)

// ══════════════════════════════════════════════════════════════════════════════
// TEXTS
// ══════════════════════════════════════════════════════════════════════════════

const (
	Welcome = "👋 Assalomu alaykum!\n\n" +
		"Bu bot orqali farzandingizning kunlik baholarini kuzatishingiz mumkin.\n\n" +
		"Davom etish uchun o'quvchining login va parolini kiriting."

	EnterUsername = "👤 O'quvchining login (username)ini kiriting:"
	EnterPassword = "🔐 O'quvchining parolini kiriting:"

	AuthFailed        = "❌ Login yoki parol noto'g'ri. Qaytadan urinib ko'ring."
	AuthStudentOnly   = "❌ Faqat o'quvchi ma'lumotlari bilan kirish mumkin."
	AuthAlreadyLinked = "⚠️ Siz allaqachon bu o'quvchiga bog'langansiz."
	AuthInactiveUser  = "❌ Bu foydalanuvchi faol emas."

	SettingsMenu = "⚙️ *Sozlamalar*\n\nQuyidagi sozlamalarni o'zgartirishingiz mumkin:"

	NotificationsOn  = "✅ Bildirishnomalar yoqilgan"
	NotificationsOff = "❌ Bildirishnomalar o'chirilgan"

	HelpText = "❓ *Yordam*\n\n" +
		"Bu bot farzandingizning kunlik baholarini kuzatish uchun mo'ljallangan.\n\n" +
		"*Asosiy xususiyatlar:*\n" +
		"• Har kuni belgilangan vaqtda avtomatik baho hisoboti\n" +
		"• Bugungi baholarni ko'rish imkoniyati\n" +
		"• Bildirishnomalarni yoqish/o'chirish\n\n" +
		"*Muammo bo'lsa:*\n" +
		"Maktab ma'muriyatiga murojaat qiling."

	ErrorGeneral   = "❌ Xatolik yuz berdi. Iltimos, qaytadan urinib ko'ring."
	ErrorNotLinked = "⚠️ Siz hali hech qanday o'quvchiga bog'lanmagansiz. /start buyrug'ini yuboring."
	RateLimited    = "⏳ Juda ko'p so'rov. Birozdan so'ng qayta urinib ko'ring."

	UnlinkConfirm   = "❓ Rostdan ham bog'lanishni bekor qilmoqchimisiz?"
	UnlinkSuccess   = "✅ Bog'lanish bekor qilindi. Qayta bog'lanish uchun /start buyrug'ini yuboring."
	UnlinkCancelled = "❌ Bekor qilindi."

	unknownClasses = "Noma'lum"
)

// ClassNames lists the student's classes, or "Noma'lum" when there are none.
func ClassNames(st student.Student) string {
	if names := st.ClassNames(); names != "" {
		return names
	}
	return unknownClasses
}

// WelcomeBack greets a chat that is already linked.
func WelcomeBack(st student.Student) string {
	return fmt.Sprintf("👋 Qaytib kelganingizdan xursandmiz!\n\n📚 O'quvchi: *%s*\n🏫 Sinflar: *%s*",
		st.DisplayName(), ClassNames(st))
}

// AuthSuccess confirms a new link.
func AuthSuccess(st student.Student) string {
	return fmt.Sprintf("✅ Muvaffaqiyatli ro'yxatdan o'tdingiz!\n\n"+
		"📚 O'quvchi: %s\n🏫 Sinflar: %s\n\n"+
		"Endi har kuni belgilangan vaqtda farzandingizning baholarini olasiz.",
		st.DisplayName(), ClassNames(st))
}

// Settings renders the settings message for the current toggle state.
func Settings(enabled bool) string {
	status := NotificationsOff
	if enabled {
		status = NotificationsOn
	}
	return SettingsMenu + "\n\n" + status
}

// AuthError maps a link failure to its reply. Unknown errors map to
// ErrorGeneral.
func AuthError(err error) string {
	switch shared.Code(err) {
	case shared.ErrUserNotFound.Code, shared.ErrInvalidPassword.Code:
		return AuthFailed
	case shared.ErrNotStudent.Code:
		return AuthStudentOnly
	case shared.ErrInactiveUser.Code:
		return AuthInactiveUser
	case shared.ErrAlreadyLinked.Code:
		return AuthAlreadyLinked
	default:
		return ErrorGeneral
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// KEYBOARDS
// ══════════════════════════════════════════════════════════════════════════════

// MainKeyboard is shown to linked chats.
func MainKeyboard() *telegram.ReplyKeyboardMarkup {
	return &telegram.ReplyKeyboardMarkup{
		Keyboard: [][]telegram.KeyboardButton{
			{{Text: BtnMyGrades}},
			{{Text: BtnSettings}, {Text: BtnHelp}},
		},
		ResizeKeyboard: true,
	}
}

// StartKeyboard is shown to chats that are not linked.
func StartKeyboard() *telegram.ReplyKeyboardMarkup {
	return &telegram.ReplyKeyboardMarkup{
		Keyboard:       [][]telegram.KeyboardButton{{{Text: BtnStart}}},
		ResizeKeyboard: true,
	}
}

// RemoveKeyboard hides the reply keyboard while credentials are typed.
func RemoveKeyboard() *telegram.ReplyKeyboardRemove {
	return &telegram.ReplyKeyboardRemove{RemoveKeyboard: true}
}

// SettingsKeyboard offers the opposite of the current toggle state and unlink.
func SettingsKeyboard(enabled bool) *telegram.InlineKeyboardMarkup {
	toggle := CallbackToggleOn
	if enabled {
		toggle = CallbackToggleOff
	}
	return &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{
			{{Text: BtnToggle, CallbackData: toggle}},
			{{Text: BtnUnlink, CallbackData: CallbackUnlink}},
		},
	}
}

// ConfirmUnlinkKeyboard asks for unlink confirmation.
func ConfirmUnlinkKeyboard() *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{{
			{Text: BtnYes, CallbackData: CallbackConfirmUnlink},
			{Text: BtnNo, CallbackData: CallbackCancelUnlink},
		}},
	}
}
