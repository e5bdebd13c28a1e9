package common

// All units are metric:
// - Speed is in m/s
// - Distance is in meters
// - Acceleration is in m/s^2
// - Angular rate is in rad/s
// - Angles are in radians unless noted otherwise

const GravityMagnitude = 9.80665
const EarthRadius = 6371008.8
const MetersPerDegreeLat = 111132.954

const SpeedOfSound = 343.0
const SpeedOfWalkingMax = 1.4    // or 5 km/h
const SpeedOfCityDriving = 13.9  // or 50 km/h
const SpeedOfHighwayDriving = 32 // or 120 km/h or 75 mph

const ElevationOfDeadSea = -430.0
const ElevationOfTroposphere = 11000.0

// MaxPlausibleAccel bounds accepted accelerometer readings.
// Consumer-grade IMUs clip around 16 g; anything beyond is garbage.
const MaxPlausibleAccel = 16 * GravityMagnitude

// MaxPlausibleGyro bounds accepted gyroscope readings, rad/s.
// 2000 deg/s is the usual full-scale range.
const MaxPlausibleGyro = 35.0
