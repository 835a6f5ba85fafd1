package model

import "testing"

func TestCategoryForAQI(t *testing.T) {
	tests := []struct {
		aqi  int
		want AQICategory
	}{
		{0, CategoryGood},
		{50, CategoryGood},
		{51, CategoryModerate},
		{100, CategoryModerate},
		{101, CategorySensitive},
		{150, CategorySensitive},
		{151, CategoryUnhealthy},
		{200, CategoryUnhealthy},
		{201, CategoryVeryUnhealthy},
		{300, CategoryVeryUnhealthy},
		{301, CategoryHazardous},
		{500, CategoryHazardous},
	}
	for _, tt := range tests {
		if got := CategoryForAQI(tt.aqi); got != tt.want {
			t.Errorf("CategoryForAQI(%d) = %q, want %q", tt.aqi, got, tt.want)
		}
	}
}
