package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/terminal-bench/energychain/internal/auth"
	"github.com/terminal-bench/energychain/internal/consumers"
	"github.com/terminal-bench/energychain/internal/daybook"
	"github.com/terminal-bench/energychain/internal/distributors"
	"github.com/terminal-bench/energychain/internal/identity"
	"github.com/terminal-bench/energychain/internal/plants"
	"github.com/terminal-bench/energychain/internal/snapshots"
	"github.com/terminal-bench/energychain/internal/substations"
	"github.com/terminal-bench/energychain/pkg/energy"
)

// Request types

type registerRequest struct {
	Address  string `json:"address" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type createPlantRequest struct {
	Name          string `json:"name" binding:"required"`
	Area          string `json:"area" binding:"required"`
	InitialEnergy string `json:"initial_energy"`
}

type addEnergyRequest struct {
	Amount string `json:"amount" binding:"required"`
}

type createSubstationRequest struct {
	Name                string `json:"name" binding:"required"`
	Area                string `json:"area" binding:"required"`
	InitialAvailability string `json:"initial_availability"`
}

type connectRequest struct {
	TargetID uint64 `json:"target_id" binding:"required"`
}

type purchaseRequest struct {
	Amount string `json:"amount" binding:"required"`
}

type createDistributorRequest struct {
	Name          string `json:"name" binding:"required"`
	Area          string `json:"area" binding:"required"`
	InitialEnergy string `json:"initial_energy"`
}

type createConsumerRequest struct {
	Name        string `json:"name" binding:"required"`
	HomeAddress string `json:"home_address" binding:"required"`
}

// statusFor maps ledger errors to HTTP statuses. Every rejection keeps
// its specific error text; this only picks the code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, identity.ErrAlreadyRegistered):
		return http.StatusConflict
	case errors.Is(err, plants.ErrInsufficientAvailability),
		errors.Is(err, substations.ErrNotLinked):
		return http.StatusConflict
	case errors.Is(err, daybook.ErrNonPositiveAmount):
		return http.StatusBadRequest
	case errors.Is(err, plants.ErrNotFound),
		errors.Is(err, plants.ErrNoSuchPlant),
		errors.Is(err, substations.ErrNotFound),
		errors.Is(err, substations.ErrNoSuchSubstation),
		errors.Is(err, distributors.ErrNotFound),
		errors.Is(err, consumers.ErrNotFound),
		errors.Is(err, consumers.ErrNoSuchConsumer),
		errors.Is(err, identity.ErrNotOwner):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func caller(c *gin.Context) string {
	return c.MustGet("caller").(string)
}

func abortWith(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

// Auth handlers

func (g *Gateway) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	account, err := g.accounts.Register(c.Request.Context(), req.Address, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrAddressExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "address already registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}
	c.JSON(http.StatusCreated, account)
}

func (g *Gateway) login(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	token, err := g.accounts.Login(c.Request.Context(), req.Address, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Power plant handlers

func (g *Gateway) addPowerPlant(c *gin.Context) {
	var req createPlantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	initial, err := energy.ParseInitial(req.InitialEnergy)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	plant, err := g.chain.AddPowerPlant(c.Request.Context(), caller(c), req.Name, req.Area, initial)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, plant)
}

func (g *Gateway) addEnergy(c *gin.Context) {
	var req addEnergyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	amount, err := energy.ParseQuantity(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	plant, err := g.chain.AddEnergyAvailableToBuy(c.Request.Context(), caller(c), amount)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, plant)
}

func (g *Gateway) getPowerPlant(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var plant plants.PowerPlant
	err := g.cached(c, snapshots.Key("powerplant", id), &plant, func() (interface{}, error) {
		return g.chain.PowerPlantByID(id)
	})
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, plant)
}

func (g *Gateway) getPlantProduced(c *gin.Context) {
	id, day, ok := idDayParams(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "day": day, "amount": g.chain.PlantEnergyProducedByDay(id, day).String()})
}

func (g *Gateway) getPlantSold(c *gin.Context) {
	id, day, ok := idDayParams(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "day": day, "amount": g.chain.PlantEnergySoldByDay(id, day).String()})
}

func (g *Gateway) getPlantSubstations(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "substations": g.chain.SubstationsOfPlant(id)})
}

// Substation handlers

func (g *Gateway) addSubstation(c *gin.Context) {
	var req createSubstationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	initial, err := energy.ParseInitial(req.InitialAvailability)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := g.chain.AddSubstation(c.Request.Context(), caller(c), initial, req.Name, req.Area)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (g *Gateway) connectSubstation(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	sub, err := g.chain.ConnectSubstationToPowerplant(c.Request.Context(), caller(c), req.TargetID)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (g *Gateway) buyEnergy(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	amount, err := energy.ParseQuantity(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := g.chain.BuyEnergyFromPowerPlant(c.Request.Context(), caller(c), amount)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (g *Gateway) getSubstation(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var sub substations.Substation
	err := g.cached(c, snapshots.Key("substation", id), &sub, func() (interface{}, error) {
		return g.chain.SubstationByID(id)
	})
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (g *Gateway) getSubstationBought(c *gin.Context) {
	id, day, ok := idDayParams(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "day": day, "amount": g.chain.SubstationEnergyBoughtByDay(id, day).String()})
}

func (g *Gateway) getSubstationSold(c *gin.Context) {
	id, day, ok := idDayParams(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "day": day, "amount": g.chain.SubstationEnergySoldByDay(id, day).String()})
}

// Distributor handlers

func (g *Gateway) addDistributor(c *gin.Context) {
	var req createDistributorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	initial, err := energy.ParseInitial(req.InitialEnergy)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dist, err := g.chain.AddDistributor(c.Request.Context(), caller(c), req.Name, req.Area, initial)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, dist)
}

func (g *Gateway) getDistributor(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var dist distributors.Distributor
	err := g.cached(c, snapshots.Key("distributor", id), &dist, func() (interface{}, error) {
		return g.chain.DistributorByID(id)
	})
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, dist)
}

func (g *Gateway) getDistributorConsumers(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "consumers": g.chain.ConsumersOfDistributor(id)})
}

// Consumer handlers

func (g *Gateway) addConsumer(c *gin.Context) {
	var req createConsumerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	consumer, err := g.chain.AddConsumer(c.Request.Context(), caller(c), req.Name, req.HomeAddress)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, consumer)
}

func (g *Gateway) connectConsumer(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	consumer, err := g.chain.ConnectConsumerToDistributor(c.Request.Context(), caller(c), req.TargetID)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, consumer)
}

func (g *Gateway) getConsumer(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var consumer consumers.Consumer
	err := g.cached(c, snapshots.Key("consumer", id), &consumer, func() (interface{}, error) {
		return g.chain.ConsumerByID(id)
	})
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, consumer)
}

func (g *Gateway) getConsumerConsumed(c *gin.Context) {
	id, day, ok := idDayParams(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "day": day, "amount": g.chain.ConsumerEnergyConsumedByDay(id, day).String()})
}

// Metering

func (g *Gateway) tick(c *gin.Context) {
	settled := g.chain.Tick(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"settled": len(settled)})
}

// Helpers

func (g *Gateway) cached(c *gin.Context, key string, dest interface{}, loader func() (interface{}, error)) error {
	if g.cache == nil {
		value, err := loader()
		if err != nil {
			return err
		}
		return copyJSON(value, dest)
	}
	return g.cache.GetJSON(c.Request.Context(), key, dest, loader)
}

func copyJSON(src, dest interface{}) error {
	payload, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, dest)
}

func idParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func idDayParams(c *gin.Context) (uint64, int64, bool) {
	id, ok := idParam(c)
	if !ok {
		return 0, 0, false
	}
	day, err := strconv.ParseInt(c.Param("day"), 10, 64)
	if err != nil || day < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid day"})
		return 0, 0, false
	}
	return id, day, true
}
