// schema.go
package processor

import "github.com/go-gota/gota/series"

// Canonical column names of the order table. Raw exports occasionally use
// variant headers; DataConfig.ColumnAliases maps those back onto these.
const (
	ColOrderID          = "Order_ID"
	ColCustomerID       = "Customer_ID"
	ColRestaurant       = "Restaurant_Name"
	ColCity             = "City"
	ColCuisine          = "Cuisine_Type"
	ColOrderValue       = "Order_Value"
	ColFinalAmount      = "Final_Amount"
	ColDeliveryTime     = "Delivery_Time_Min"
	ColDistance         = "Distance_km"
	ColRestaurantRating = "Restaurant_Rating"
	ColDeliveryRating   = "Delivery_Rating"
	ColProfitMargin     = "Profit_Margin"
	ColCustomerAge      = "Customer_Age"
	ColOrderStatus      = "Order_Status"
	ColCancelReason     = "Cancellation_Reason"
	ColPaymentMode      = "Payment_Mode"
	ColOrderDate        = "Order_Date"
	ColOrderTime        = "Order_Time"
)

// Derived columns added by the feature stage.
const (
	ColOrderDay         = "Order_Day"
	ColPeakHour         = "Peak_Hour"
	ColMarginPercent    = "Profit_Margin_Percent"
	ColDeliveryCategory = "Delivery_Performance"
	ColAgeGroup         = "Age_Group"
)

// StatusCancelled is the normalized order status of a cancelled order.
const StatusCancelled = "cancelled"

// NotCancelled is the sentinel filled into Cancellation_Reason for orders
// that were not cancelled.
const NotCancelled = "Not Cancelled"

// NumericColumns lists every column loaded as a float series.
var NumericColumns = []string{
	ColOrderValue,
	ColFinalAmount,
	ColDeliveryTime,
	ColDistance,
	ColRestaurantRating,
	ColDeliveryRating,
	ColProfitMargin,
	ColCustomerAge,
}

// ColumnTypes builds the type map handed to the file loader.
func ColumnTypes() map[string]series.Type {
	types := make(map[string]series.Type, len(NumericColumns))
	for _, col := range NumericColumns {
		types[col] = series.Float
	}
	return types
}
