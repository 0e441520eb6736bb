// database.go mirrors the cleaned order table into Postgres so the SQL task
// catalog can run server-side. The database is optional: the in-memory
// pipeline stays the source of truth and the table is replaced wholesale on
// every refresh.
package storage

import (
	"fmt"
	"sort"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"DeliveryAnalytics/src/config"
)

// CleanedOrder is the relational shape of one cleaned, feature-derived
// order row. Nullable numerics use pointers so a missing rating lands as
// SQL NULL instead of a fake zero.
type CleanedOrder struct {
	ID                  uint     `gorm:"primaryKey"`
	OrderID             string   `gorm:"column:order_id;index"`
	CustomerID          string   `gorm:"column:customer_id;index"`
	RestaurantName      string   `gorm:"column:restaurant_name;index"`
	City                string   `gorm:"column:city;index"`
	CuisineType         string   `gorm:"column:cuisine_type"`
	OrderValue          *float64 `gorm:"column:order_value"`
	FinalAmount         *float64 `gorm:"column:final_amount"`
	DeliveryTimeMin     *float64 `gorm:"column:delivery_time_min"`
	DistanceKm          *float64 `gorm:"column:distance_km"`
	RestaurantRating    *float64 `gorm:"column:restaurant_rating"`
	DeliveryRating      *float64 `gorm:"column:delivery_rating"`
	ProfitMargin        *float64 `gorm:"column:profit_margin"`
	ProfitMarginPercent *float64 `gorm:"column:profit_margin_percent"`
	CustomerAge         *float64 `gorm:"column:customer_age"`
	OrderStatus         string   `gorm:"column:order_status;index"`
	CancellationReason  string   `gorm:"column:cancellation_reason"`
	PaymentMode         string   `gorm:"column:payment_mode"`
	OrderDate           string   `gorm:"column:order_date;index"`
	OrderTime           string   `gorm:"column:order_time"`
	OrderDay            string   `gorm:"column:order_day"`
	PeakHour            bool     `gorm:"column:peak_hour"`
	DeliveryPerformance string   `gorm:"column:delivery_performance"`
	AgeGroup            string   `gorm:"column:age_group"`
}

// TableName implements gorm's Tabler.
func (CleanedOrder) TableName() string {
	return "cleaned_orders"
}

// OrderDatabase wraps the gorm handle with the replace-and-query operations
// the service needs.
type OrderDatabase struct {
	db        *gorm.DB
	batchSize int
	log       *Logger
}

// NewOrderDatabase opens the Postgres connection and migrates the table.
func NewOrderDatabase(cfg *config.Config, log *Logger) (*OrderDatabase, error) {
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	od := &OrderDatabase{db: db, batchSize: cfg.Database.BatchSize, log: log}
	if err := od.InitTables(); err != nil {
		return nil, err
	}
	return od, nil
}

func (od *OrderDatabase) InitTables() error {
	if err := od.db.AutoMigrate(&CleanedOrder{}); err != nil {
		return fmt.Errorf("migrate cleaned_orders: %w", err)
	}
	return nil
}

// ReplaceOrders swaps the table contents for the given rows in one
// transaction, so queries never observe a half-loaded table.
func (od *OrderDatabase) ReplaceOrders(orders []CleanedOrder) error {
	start := time.Now()
	err := od.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&CleanedOrder{}).Error; err != nil {
			return err
		}
		if len(orders) == 0 {
			return nil
		}
		return tx.CreateInBatches(orders, od.batchSize).Error
	})
	if err != nil {
		return fmt.Errorf("replace orders: %w", err)
	}
	od.log.Info(fmt.Sprintf("database sync: %d rows in %v", len(orders), time.Since(start).Round(time.Millisecond)))
	return nil
}

// OrdersFromMaps converts pipeline rows (as column-name maps) to records.
// Unknown or missing cells stay NULL / empty.
func OrdersFromMaps(rows []map[string]interface{}) []CleanedOrder {
	orders := make([]CleanedOrder, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, CleanedOrder{
			OrderID:             mapString(row, "Order_ID"),
			CustomerID:          mapString(row, "Customer_ID"),
			RestaurantName:      mapString(row, "Restaurant_Name"),
			City:                mapString(row, "City"),
			CuisineType:         mapString(row, "Cuisine_Type"),
			OrderValue:          mapFloat(row, "Order_Value"),
			FinalAmount:         mapFloat(row, "Final_Amount"),
			DeliveryTimeMin:     mapFloat(row, "Delivery_Time_Min"),
			DistanceKm:          mapFloat(row, "Distance_km"),
			RestaurantRating:    mapFloat(row, "Restaurant_Rating"),
			DeliveryRating:      mapFloat(row, "Delivery_Rating"),
			ProfitMargin:        mapFloat(row, "Profit_Margin"),
			ProfitMarginPercent: mapFloat(row, "Profit_Margin_Percent"),
			CustomerAge:         mapFloat(row, "Customer_Age"),
			OrderStatus:         mapString(row, "Order_Status"),
			CancellationReason:  mapString(row, "Cancellation_Reason"),
			PaymentMode:         mapString(row, "Payment_Mode"),
			OrderDate:           mapString(row, "Order_Date"),
			OrderTime:           mapString(row, "Order_Time"),
			OrderDay:            mapString(row, "Order_Day"),
			PeakHour:            mapBool(row, "Peak_Hour"),
			DeliveryPerformance: mapString(row, "Delivery_Performance"),
			AgeGroup:            mapString(row, "Age_Group"),
		})
	}
	return orders
}

func mapString(row map[string]interface{}, key string) string {
	v, ok := row[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok || s == "NaN" {
		return ""
	}
	return s
}

func mapFloat(row map[string]interface{}, key string) *float64 {
	v, ok := row[key]
	if !ok || v == nil {
		return nil
	}
	switch n := v.(type) {
	case float64:
		if n != n { // NaN
			return nil
		}
		return &n
	case int:
		f := float64(n)
		return &f
	}
	return nil
}

func mapBool(row map[string]interface{}, key string) bool {
	b, _ := row[key].(bool)
	return b
}

// TaskCatalog is the named analytic SQL the HTTP API exposes. Every query
// reads cleaned_orders only and returns a small ranked result set.
var TaskCatalog = map[string]string{
	"top_spending_customers": `
		SELECT customer_id, COUNT(*) AS orders, ROUND(SUM(final_amount)::numeric, 2) AS total_spent
		FROM cleaned_orders
		WHERE final_amount IS NOT NULL
		GROUP BY customer_id
		ORDER BY total_spent DESC
		LIMIT 10`,
	"age_group_vs_order_value": `
		SELECT age_group, COUNT(*) AS orders, ROUND(AVG(order_value)::numeric, 2) AS avg_order_value
		FROM cleaned_orders
		WHERE age_group <> ''
		GROUP BY age_group
		ORDER BY avg_order_value DESC`,
	"weekday_vs_weekend_orders": `
		SELECT order_day, COUNT(*) AS orders, ROUND(AVG(final_amount)::numeric, 2) AS avg_amount
		FROM cleaned_orders
		WHERE order_day <> ''
		GROUP BY order_day
		ORDER BY orders DESC`,
	"monthly_revenue_trend": `
		SELECT LEFT(order_date, 7) AS month, COUNT(*) AS orders, ROUND(SUM(final_amount)::numeric, 2) AS revenue
		FROM cleaned_orders
		WHERE order_date <> '' AND final_amount IS NOT NULL
		GROUP BY month
		ORDER BY month`,
	"high_revenue_cities": `
		SELECT city, COUNT(*) AS orders, ROUND(SUM(final_amount)::numeric, 2) AS revenue
		FROM cleaned_orders
		WHERE city <> '' AND final_amount IS NOT NULL
		GROUP BY city
		ORDER BY revenue DESC
		LIMIT 10`,
	"avg_delivery_time_by_city": `
		SELECT city, ROUND(AVG(delivery_time_min)::numeric, 2) AS avg_delivery_time
		FROM cleaned_orders
		WHERE city <> '' AND delivery_time_min IS NOT NULL
		GROUP BY city
		ORDER BY avg_delivery_time DESC`,
	"distance_vs_delay": `
		SELECT delivery_performance, COUNT(*) AS orders, ROUND(AVG(distance_km)::numeric, 2) AS avg_distance
		FROM cleaned_orders
		WHERE delivery_performance <> '' AND distance_km IS NOT NULL
		GROUP BY delivery_performance
		ORDER BY avg_distance DESC`,
	"rating_vs_delivery_time": `
		SELECT delivery_performance, ROUND(AVG(delivery_rating)::numeric, 2) AS avg_rating
		FROM cleaned_orders
		WHERE delivery_performance <> '' AND delivery_rating IS NOT NULL
		GROUP BY delivery_performance
		ORDER BY avg_rating DESC`,
	"top_rated_restaurants": `
		SELECT restaurant_name, COUNT(*) AS orders, ROUND(AVG(restaurant_rating)::numeric, 2) AS avg_rating
		FROM cleaned_orders
		WHERE restaurant_name <> '' AND restaurant_rating IS NOT NULL
		GROUP BY restaurant_name
		HAVING COUNT(*) >= 5
		ORDER BY avg_rating DESC
		LIMIT 10`,
	"cancellation_rate_by_restaurant": `
		SELECT restaurant_name,
		       COUNT(*) AS orders,
		       ROUND(100.0 * COUNT(*) FILTER (WHERE order_status = 'cancelled') / COUNT(*), 2) AS cancellation_rate
		FROM cleaned_orders
		WHERE restaurant_name <> ''
		GROUP BY restaurant_name
		HAVING COUNT(*) >= 10
		ORDER BY cancellation_rate DESC`,
	"cuisine_performance": `
		SELECT cuisine_type, COUNT(*) AS orders, ROUND(SUM(final_amount)::numeric, 2) AS revenue,
		       ROUND(AVG(restaurant_rating)::numeric, 2) AS avg_rating
		FROM cleaned_orders
		WHERE cuisine_type <> ''
		GROUP BY cuisine_type
		ORDER BY revenue DESC NULLS LAST`,
	"peak_hour_demand": `
		SELECT CASE WHEN peak_hour THEN 'Peak' ELSE 'Non-Peak' END AS demand_window, COUNT(*) AS orders
		FROM cleaned_orders
		GROUP BY peak_hour
		ORDER BY orders DESC`,
	"payment_mode_preferences": `
		SELECT payment_mode, COUNT(*) AS orders
		FROM cleaned_orders
		WHERE payment_mode <> ''
		GROUP BY payment_mode
		ORDER BY orders DESC`,
	"cancellation_reason_analysis": `
		SELECT cancellation_reason, COUNT(*) AS orders
		FROM cleaned_orders
		WHERE order_status = 'cancelled'
		GROUP BY cancellation_reason
		ORDER BY orders DESC`,
	"profit_margin_by_city": `
		SELECT city, ROUND(AVG(profit_margin_percent)::numeric, 2) AS avg_margin_pct
		FROM cleaned_orders
		WHERE city <> '' AND profit_margin_percent IS NOT NULL
		GROUP BY city
		ORDER BY avg_margin_pct DESC`,
}

// TaskNames lists the catalog, sorted for stable API output.
func TaskNames() []string {
	names := make([]string, 0, len(TaskCatalog))
	for name := range TaskCatalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunTask executes a catalog query and returns generic rows.
func (od *OrderDatabase) RunTask(name string) ([]map[string]interface{}, error) {
	query, ok := TaskCatalog[name]
	if !ok {
		return nil, fmt.Errorf("unknown task %q", name)
	}

	var rows []map[string]interface{}
	if err := od.db.Raw(query).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("task %s: %w", name, err)
	}
	return rows, nil
}
