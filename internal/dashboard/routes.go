package dashboard

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/stenograph/internal/archive"
	"github.com/zulandar/stenograph/internal/models"
	"github.com/zulandar/stenograph/internal/proxy"
	"github.com/zulandar/stenograph/internal/settings"
	"gorm.io/gorm"
)

const defaultPageSize = 50

// registerRoutes sets up the API on the gin router. Reads dominate;
// the few writes are administrative (renames, settings, proxy keys).
func registerRoutes(router *gin.Engine, db *gorm.DB, store archive.Store) {
	api := router.Group("/api/:tenantId")

	api.GET("/sessions", handleSessionList(db))
	api.GET("/sessions/:id", handleSessionDetail(db))
	api.GET("/sessions/:id/messages", handleSessionMessages(db, store))
	api.GET("/contributors", handleContributorList(db))
	api.PATCH("/contributors/:id", handleContributorRename(db))
	api.GET("/projects", handleProjectList(db))
	api.GET("/projects/:id/memory-records", handleMemoryRecords(db))
	api.GET("/proxies", handleProxyList(db))
	api.POST("/proxies", handleProxyCreate(db))
	api.DELETE("/proxies/:id", handleProxyDelete(db))
	api.GET("/settings", handleSettingList(db))
	api.PUT("/settings/:key", handleSettingSet(db))
}

func tenantID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("tenantId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tenant id"})
		return 0, false
	}
	return uint(id), true
}

func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

func handleSessionList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, ok := tenantID(c)
		if !ok {
			return
		}

		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		if page < 1 {
			page = 1
		}
		size, _ := strconv.Atoi(c.DefaultQuery("pageSize", strconv.Itoa(defaultPageSize)))
		if size < 1 || size > 200 {
			size = defaultPageSize
		}

		rows, total, err := SessionList(db, tenant, (page-1)*size, size)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"sessions": rows,
			"total":    total,
			"page":     page,
			"pageSize": size,
		})
	}
}

func handleSessionDetail(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, ok := tenantID(c)
		if !ok {
			return
		}
		id, ok := pathID(c)
		if !ok {
			return
		}

		detail, _, err := SessionByID(db, tenant, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}

func handleSessionMessages(db *gorm.DB, store archive.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, ok := tenantID(c)
		if !ok {
			return
		}
		id, ok := pathID(c)
		if !ok {
			return
		}

		_, session, err := SessionByID(db, tenant, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}

		data, err := store.Get(archive.CombinedPath(tenant, session.ID, session.CreatedAt))
		if errors.Is(err, archive.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "transcript not available yet"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "archive read failed"})
			return
		}
		c.Data(http.StatusOK, "application/json", data)
	}
}

func handleContributorList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, ok := tenantID(c)
		if !ok {
			return
		}
		rows, err := ContributorList(db, tenant)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"contributors": rows})
	}
}

func handleProjectList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, ok := tenantID(c)
		if !ok {
			return
		}
		rows, err := ProjectList(db, tenant)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"projects": rows})
	}
}

func handleMemoryRecords(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, ok := tenantID(c)
		if !ok {
			return
		}
		id, ok := pathID(c)
		if !ok {
			return
		}
		rows, err := MemoryRecordsByProject(db, tenant, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"memoryRecords": rows})
	}
}

func handleContributorRename(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, ok := tenantID(c)
		if !ok {
			return
		}
		id, ok := pathID(c)
		if !ok {
			return
		}

		var body struct {
			DisplayName string `json:"displayName"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}

		res := db.Model(&models.Contributor{}).
			Where("id = ? AND tenant_id = ?", id, tenant).
			Update("display_name", body.DisplayName)
		if res.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
			return
		}
		if res.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "contributor not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "displayName": body.DisplayName})
	}
}

func handleProxyList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, ok := tenantID(c)
		if !ok {
			return
		}
		rows, err := ProxyList(db, tenant)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"proxies": rows})
	}
}

func handleProxyCreate(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, ok := tenantID(c)
		if !ok {
			return
		}

		var body struct {
			Name string `json:"name"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
			return
		}

		key, err := proxy.GenerateAPIKey()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "key generation failed"})
			return
		}
		row := models.Proxy{TenantID: tenant, Name: body.Name, APIKey: key}
		if err := db.Create(&row).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
			return
		}

		// The only response that ever carries the full key.
		c.JSON(http.StatusCreated, gin.H{"id": row.ID, "name": row.Name, "apiKey": key})
	}
}

func handleProxyDelete(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, ok := tenantID(c)
		if !ok {
			return
		}
		id, ok := pathID(c)
		if !ok {
			return
		}

		res := db.Where("id = ? AND tenant_id = ?", id, tenant).Delete(&models.Proxy{})
		if res.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
			return
		}
		if res.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "proxy not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": id})
	}
}

func handleSettingList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, ok := tenantID(c)
		if !ok {
			return
		}
		rows, err := SettingList(db, tenant)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"settings": rows})
	}
}

func handleSettingSet(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, ok := tenantID(c)
		if !ok {
			return
		}
		key := c.Param("key")
		if key == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key"})
			return
		}

		var body struct {
			Value string `json:"value"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}

		if err := settings.Set(db, tenant, key, body.Value); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
			return
		}

		var row models.Setting
		if err := db.Where("tenant_id = ? AND `key` = ?", tenant, key).First(&row).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "read back failed"})
			return
		}
		value := row.Value
		if row.Hidden {
			value = ""
		}
		c.JSON(http.StatusOK, SettingRow{Key: row.Key, Value: value, Hidden: row.Hidden})
	}
}
