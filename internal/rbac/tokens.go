package rbac

// Permission tokens are opaque capability flags; the catalog treats them as
// plain strings so new capabilities never touch the comparison logic.
const (
	PermViewOwnProfile    = "view_own_profile"
	PermViewDocuments     = "view_documents"
	PermSubmitDocuments   = "submit_documents"
	PermViewAnnouncements = "view_announcements"

	PermApproveReservistAccounts = "approve_reservist_accounts"
	PermManageDocuments          = "manage_documents"
	PermManageAnnouncements      = "manage_announcements"
	PermViewPersonnel            = "view_personnel"

	PermManagePersonnel     = "manage_personnel"
	PermManageStaffAccounts = "manage_staff_accounts"
	PermViewReports         = "view_reports"

	PermManageSystem  = "manage_system"
	PermSimulateRoles = "simulate_roles"
)
