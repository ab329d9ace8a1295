package export

import (
	"context"

	"go.uber.org/zap"

	"github.com/garyjia/hr-requests/internal/application/port"
)

// nameCache memoises id to display-name lookups for one export.
// Lookup failures are logged and render as an empty cell.
type nameCache struct {
	ctx           context.Context
	referenceRepo port.ReferenceRepository
	userRepo      port.UserRepository
	logger        *zap.Logger
	values        map[string]string
}

func newNameCache(ctx context.Context, referenceRepo port.ReferenceRepository, userRepo port.UserRepository, logger *zap.Logger) *nameCache {
	return &nameCache{
		ctx:           ctx,
		referenceRepo: referenceRepo,
		userRepo:      userRepo,
		logger:        logger,
		values:        make(map[string]string),
	}
}

func (c *nameCache) lookup(kind, id string, fetch func() (string, error)) string {
	if id == "" {
		return ""
	}
	key := kind + ":" + id
	if v, ok := c.values[key]; ok {
		return v
	}
	v, err := fetch()
	if err != nil {
		c.logger.Warn("Failed to resolve name for export",
			zap.String("kind", kind),
			zap.String("id", id),
			zap.Error(err))
	}
	c.values[key] = v
	return v
}

func (c *nameCache) company(id string) string {
	return c.lookup("company", id, func() (string, error) {
		company, err := c.referenceRepo.GetCompany(c.ctx, id)
		if err != nil || company == nil {
			return "", err
		}
		return company.TradeName, nil
	})
}

func (c *nameCache) contract(id string) string {
	return c.lookup("contract", id, func() (string, error) {
		contract, err := c.referenceRepo.GetContract(c.ctx, id)
		if err != nil || contract == nil {
			return "", err
		}
		return contract.Name, nil
	})
}

func (c *nameCache) user(id string) string {
	return c.lookup("user", id, func() (string, error) {
		user, err := c.userRepo.GetByID(c.ctx, id)
		if err != nil || user == nil {
			return "", err
		}
		return user.Name, nil
	})
}

func (c *nameCache) position(id *string) string {
	if id == nil {
		return ""
	}
	return c.lookup("position", *id, func() (string, error) {
		position, err := c.referenceRepo.GetPosition(c.ctx, *id)
		if err != nil || position == nil {
			return "", err
		}
		return position.Name, nil
	})
}

func (c *nameCache) employee(id *string) string {
	if id == nil {
		return ""
	}
	return c.lookup("employee", *id, func() (string, error) {
		employee, err := c.referenceRepo.GetEmployee(c.ctx, *id)
		if err != nil || employee == nil {
			return "", err
		}
		return employee.Name, nil
	})
}
