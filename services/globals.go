package services

// Global service instances, wired once at startup and read by handlers.

var (
	globalRefreshService    *RefreshService
	globalPreferenceService *PreferenceService
	globalNotifierService   *NotifierService
	globalBudgetService     *BudgetService
)

// SetGlobalRefreshService sets the global refresh service instance
func SetGlobalRefreshService(service *RefreshService) {
	globalRefreshService = service
}

// GetGlobalRefreshService returns the global refresh service instance
func GetGlobalRefreshService() *RefreshService {
	return globalRefreshService
}

// SetGlobalPreferenceService sets the global preference service instance
func SetGlobalPreferenceService(service *PreferenceService) {
	globalPreferenceService = service
}

// GetGlobalPreferenceService returns the global preference service instance
func GetGlobalPreferenceService() *PreferenceService {
	return globalPreferenceService
}

// SetGlobalNotifierService sets the global notifier service instance
func SetGlobalNotifierService(service *NotifierService) {
	globalNotifierService = service
}

// GetGlobalNotifierService returns the global notifier service instance
func GetGlobalNotifierService() *NotifierService {
	return globalNotifierService
}

// SetGlobalBudgetService sets the global budget service instance
func SetGlobalBudgetService(service *BudgetService) {
	globalBudgetService = service
}

// GetGlobalBudgetService returns the global budget service instance
func GetGlobalBudgetService() *BudgetService {
	return globalBudgetService
}
